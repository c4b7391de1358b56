package plan

// Kind identifies the operation a node performs. The string form is what
// appears in documents, logs, and DOT output; the binary plan format stores
// the registry tag instead.
type Kind string

// File I/O.
const (
	KindReadFile   Kind = "read_file"
	KindWriteFile  Kind = "write_file"
	KindAppendFile Kind = "append_file"
	KindDeleteFile Kind = "delete_file"
	KindFileExists Kind = "file_exists"
	KindIsFile     Kind = "is_file"
	KindIsDir      Kind = "is_dir"
	KindMkdir      Kind = "mkdir"
	KindRmdir      Kind = "rmdir"
	KindListDir    Kind = "list_dir"
	KindCopyFile   Kind = "copy_file"
	KindMoveFile   Kind = "move_file"
	KindFileSize   Kind = "file_size"
)

// Network and process.
const (
	KindHTTPRequest Kind = "http_request"
	KindExec        Kind = "exec"
	KindEnvGet      Kind = "env_get"
)

// Time.
const (
	KindSleep Kind = "sleep"
	KindNow   Kind = "now"
)

// Serialization.
const (
	KindJSONEncode Kind = "json_encode"
	KindJSONDecode Kind = "json_decode"
)

// Console.
const (
	KindStdout Kind = "stdout"
	KindStderr Kind = "stderr"
)

// Event sources.
const (
	KindEventSource      Kind = "event_source"
	KindEventWrite       Kind = "event_write"
	KindEventPoll        Kind = "event_poll"
	KindEventSourceClose Kind = "event_source_close"
)

// Pure compute.
const (
	KindAdd      Kind = "add"
	KindSub      Kind = "sub"
	KindMul      Kind = "mul"
	KindDiv      Kind = "div"
	KindFloorDiv Kind = "floor_div"
	KindMod      Kind = "mod"
	KindNeg      Kind = "neg"
	KindEq       Kind = "eq"
	KindNe       Kind = "ne"
	KindLt       Kind = "lt"
	KindLe       Kind = "le"
	KindGt       Kind = "gt"
	KindGe       Kind = "ge"
	KindNot      Kind = "not"
	KindConcat   Kind = "concat"
	KindContains Kind = "contains"
	KindBool     Kind = "bool"
	KindInt      Kind = "int"
	KindFloat    Kind = "float"
	KindStr      Kind = "str"
	KindLen      Kind = "len"
)

// Composition.
const (
	KindGather  Kind = "gather"
	KindAny     Kind = "any"
	KindAtLeast Kind = "at_least"
	KindAtMost  Kind = "at_most"
	KindAfter   Kind = "after"
)

// Source kinds accepted by event_source nodes.
const (
	SourceTCPConnect  = "tcp_connect"
	SourceTCPListen   = "tcp_listen"
	SourceUDPBind     = "udp_bind"
	SourceUnixConnect = "unix_connect"
	SourceUnixListen  = "unix_listen"
)

// Family groups kinds by the driver that executes them.
type Family uint8

const (
	FamilyNone Family = iota
	FamilyFS
	FamilyHTTP
	FamilyProc
	FamilyTime
	FamilyJSON
	FamilyConsole
	FamilyEvent
	FamilyCompute
	FamilyCombinator
)

func (f Family) String() string {
	switch f {
	case FamilyFS:
		return "fs"
	case FamilyHTTP:
		return "http"
	case FamilyProc:
		return "proc"
	case FamilyTime:
		return "time"
	case FamilyJSON:
		return "json"
	case FamilyConsole:
		return "console"
	case FamilyEvent:
		return "event"
	case FamilyCompute:
		return "compute"
	case FamilyCombinator:
		return "combinator"
	default:
		return "none"
	}
}

type kindInfo struct {
	tag        uint16
	family     Family
	sideEffect bool
}

// registry assigns each kind a stable wire tag. Tags are append-only: new
// kinds take the next free tag, existing tags are never reused or renumbered.
var registry = map[Kind]kindInfo{
	KindReadFile:   {1, FamilyFS, false},
	KindWriteFile:  {2, FamilyFS, true},
	KindAppendFile: {3, FamilyFS, true},
	KindDeleteFile: {4, FamilyFS, true},
	KindFileExists: {5, FamilyFS, false},
	KindIsFile:     {6, FamilyFS, false},
	KindIsDir:      {7, FamilyFS, false},
	KindMkdir:      {8, FamilyFS, true},
	KindRmdir:      {9, FamilyFS, true},
	KindListDir:    {10, FamilyFS, false},
	KindCopyFile:   {11, FamilyFS, true},
	KindMoveFile:   {12, FamilyFS, true},
	KindFileSize:   {13, FamilyFS, false},

	KindHTTPRequest: {20, FamilyHTTP, true},
	KindExec:        {21, FamilyProc, true},
	KindEnvGet:      {22, FamilyProc, false},

	KindSleep: {30, FamilyTime, true},
	KindNow:   {31, FamilyTime, false},

	KindJSONEncode: {40, FamilyJSON, false},
	KindJSONDecode: {41, FamilyJSON, false},

	KindStdout: {50, FamilyConsole, true},
	KindStderr: {51, FamilyConsole, true},

	KindEventSource:      {60, FamilyEvent, true},
	KindEventWrite:       {61, FamilyEvent, true},
	KindEventPoll:        {62, FamilyEvent, true},
	KindEventSourceClose: {63, FamilyEvent, true},

	KindAdd:      {80, FamilyCompute, false},
	KindSub:      {81, FamilyCompute, false},
	KindMul:      {82, FamilyCompute, false},
	KindDiv:      {83, FamilyCompute, false},
	KindFloorDiv: {84, FamilyCompute, false},
	KindMod:      {85, FamilyCompute, false},
	KindNeg:      {86, FamilyCompute, false},
	KindEq:       {87, FamilyCompute, false},
	KindNe:       {88, FamilyCompute, false},
	KindLt:       {89, FamilyCompute, false},
	KindLe:       {90, FamilyCompute, false},
	KindGt:       {91, FamilyCompute, false},
	KindGe:       {92, FamilyCompute, false},
	KindNot:      {93, FamilyCompute, false},
	KindConcat:   {94, FamilyCompute, false},
	KindContains: {95, FamilyCompute, false},
	KindBool:     {96, FamilyCompute, false},
	KindInt:      {97, FamilyCompute, false},
	KindFloat:    {98, FamilyCompute, false},
	KindStr:      {99, FamilyCompute, false},
	KindLen:      {100, FamilyCompute, false},

	KindGather:  {110, FamilyCombinator, false},
	KindAny:     {111, FamilyCombinator, false},
	KindAtLeast: {112, FamilyCombinator, false},
	KindAtMost:  {113, FamilyCombinator, false},
	KindAfter:   {114, FamilyCombinator, false},
}

var tagToKind = func() map[uint16]Kind {
	m := make(map[uint16]Kind, len(registry))
	for k, info := range registry {
		if _, dup := m[info.tag]; dup {
			panic("plan: duplicate kind tag " + k)
		}
		m[info.tag] = k
	}
	return m
}()

// Known reports whether k is a registered kind.
func (k Kind) Known() bool {
	_, ok := registry[k]
	return ok
}

// Tag returns the stable wire tag for k, or 0 for unknown kinds.
func (k Kind) Tag() uint16 {
	return registry[k].tag
}

// KindForTag resolves a wire tag back to its kind.
func KindForTag(tag uint16) (Kind, bool) {
	k, ok := tagToKind[tag]
	return k, ok
}

// Family returns the driver family that executes k.
func (k Kind) Family() Family {
	return registry[k].family
}

// SideEffecting reports whether running k has effects observable outside the
// plan (writes, network, exec, timers, console, events). Side-effecting nodes
// are implicitly rooted so a discarded handle never drops the work.
func (k Kind) SideEffecting() bool {
	return registry[k].sideEffect
}

// Combinator reports whether k composes other nodes rather than performing
// work itself. Combinator readiness is resolved by the scheduler, not a driver.
func (k Kind) Combinator() bool {
	return registry[k].family == FamilyCombinator
}

// Compute reports whether k is a pure value computation. Compute nodes fold
// at planning time when every operand is already materialized.
func (k Kind) Compute() bool {
	return registry[k].family == FamilyCompute
}

// UnixOnly reports whether sourceKind names a unix-domain transport, which is
// rejected at validation time on platforms without unix socket support.
func UnixOnlySource(sourceKind string) bool {
	return sourceKind == SourceUnixConnect || sourceKind == SourceUnixListen
}
