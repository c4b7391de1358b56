// Package policy decides whether plan operations may touch the resources
// they name. Rules live in a TOML file; deny patterns always win over allow
// patterns, and once a policy is loaded anything unmatched is refused.
// A nil *Policy permits everything.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"
)

// Decision is the outcome of matching an action against the rule lists.
type Decision uint8

const (
	NoMatch Decision = iota
	Allow
	Deny
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return "no match"
	}
}

// Verdict carries the decision and the pattern that produced it.
type Verdict struct {
	Decision Decision
	Rule     string
}

type FilesystemRules struct {
	AllowRead  []string `toml:"allow_read"`
	DenyRead   []string `toml:"deny_read"`
	AllowWrite []string `toml:"allow_write"`
	DenyWrite  []string `toml:"deny_write"`
}

type NetworkRules struct {
	AllowHTTP []string `toml:"allow_http"`
	DenyHTTP  []string `toml:"deny_http"`
	AllowTCP  []string `toml:"allow_tcp"`
	DenyTCP   []string `toml:"deny_tcp"`
	AllowUDP  []string `toml:"allow_udp"`
	DenyUDP   []string `toml:"deny_udp"`
	AllowUnix []string `toml:"allow_unix"`
	DenyUnix  []string `toml:"deny_unix"`
}

type ExecRules struct {
	AllowCommands []string `toml:"allow_commands"`
	DenyCommands  []string `toml:"deny_commands"`
}

type EnvRules struct {
	AllowVars []string `toml:"allow_vars"`
	DenyVars  []string `toml:"deny_vars"`
}

type Policy struct {
	Filesystem FilesystemRules `toml:"filesystem"`
	Network    NetworkRules    `toml:"network"`
	Exec       ExecRules       `toml:"exec"`
	Env        EnvRules        `toml:"env"`
}

// Parse decodes a TOML policy and verifies every pattern compiles.
func Parse(data []byte) (*Policy, error) {
	var p Policy
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if err := p.validatePatterns(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load reads and parses a policy file.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return Parse(data)
}

func (p *Policy) validatePatterns() error {
	for _, group := range [][]string{
		p.Filesystem.AllowRead, p.Filesystem.DenyRead,
		p.Filesystem.AllowWrite, p.Filesystem.DenyWrite,
		p.Network.AllowHTTP, p.Network.DenyHTTP,
		p.Network.AllowUnix, p.Network.DenyUnix,
	} {
		for _, pat := range group {
			if !doublestar.ValidatePattern(pat) {
				return fmt.Errorf("invalid policy pattern %q", pat)
			}
		}
	}
	return nil
}

// Check matches the action against the relevant rule group. Deny patterns
// are consulted before allow patterns. A nil policy allows everything.
func (p *Policy) Check(a Action) Verdict {
	if p == nil {
		return Verdict{Decision: Allow}
	}
	switch a.Op {
	case OpReadFile:
		return decidePath(a.Path, p.Filesystem.DenyRead, p.Filesystem.AllowRead)
	case OpWriteFile:
		return decidePath(a.Path, p.Filesystem.DenyWrite, p.Filesystem.AllowWrite)
	case OpHTTP:
		return decideGlob(a.URL, p.Network.DenyHTTP, p.Network.AllowHTTP)
	case OpTCPConnect, OpTCPListen:
		return decideHostPort(a.Host, a.Port, p.Network.DenyTCP, p.Network.AllowTCP)
	case OpUDPBind:
		return decideHostPort(a.Host, a.Port, p.Network.DenyUDP, p.Network.AllowUDP)
	case OpUnixConnect, OpUnixListen:
		return decidePath(a.Path, p.Network.DenyUnix, p.Network.AllowUnix)
	case OpExec:
		return decideCommand(a.Command, p.Exec.DenyCommands, p.Exec.AllowCommands)
	case OpEnvGet:
		return decideGlob(a.Name, p.Env.DenyVars, p.Env.AllowVars)
	default:
		return Verdict{Decision: NoMatch}
	}
}

// Permits turns the verdict into an error suitable for surfacing from a
// driver: denials name the rule, and an unmatched action on a loaded policy
// is refused.
func (p *Policy) Permits(a Action) error {
	if p == nil {
		return nil
	}
	switch v := p.Check(a); v.Decision {
	case Allow:
		return nil
	case Deny:
		return fmt.Errorf("%s denied by policy rule %q", a, v.Rule)
	default:
		return fmt.Errorf("%s is not permitted by policy", a)
	}
}

func decidePath(path string, deny, allow []string) Verdict {
	path = filepath.ToSlash(filepath.Clean(path))
	return decideGlob(path, deny, allow)
}

func decideGlob(s string, deny, allow []string) Verdict {
	for _, pat := range deny {
		if ok, _ := doublestar.Match(pat, s); ok {
			return Verdict{Decision: Deny, Rule: pat}
		}
	}
	for _, pat := range allow {
		if ok, _ := doublestar.Match(pat, s); ok {
			return Verdict{Decision: Allow, Rule: pat}
		}
	}
	return Verdict{Decision: NoMatch}
}

// decideHostPort matches "host:port" patterns. The host side is a glob, the
// port side is "*" or an exact number; a pattern without a colon matches any
// port on the host.
func decideHostPort(host string, port int, deny, allow []string) Verdict {
	for _, pat := range deny {
		if matchHostPort(pat, host, port) {
			return Verdict{Decision: Deny, Rule: pat}
		}
	}
	for _, pat := range allow {
		if matchHostPort(pat, host, port) {
			return Verdict{Decision: Allow, Rule: pat}
		}
	}
	return Verdict{Decision: NoMatch}
}

func matchHostPort(pat, host string, port int) bool {
	hostPat, portPat := pat, ""
	if i := strings.LastIndexByte(pat, ':'); i >= 0 {
		hostPat, portPat = pat[:i], pat[i+1:]
	}
	if ok, _ := doublestar.Match(hostPat, host); !ok {
		return false
	}
	if portPat == "" || portPat == "*" {
		return true
	}
	want, err := strconv.Atoi(portPat)
	return err == nil && want == port
}

// decideCommand matches exec patterns against both the command as given and
// its basename, so "git" covers /usr/bin/git and plain git alike.
func decideCommand(command string, deny, allow []string) Verdict {
	base := filepath.Base(command)
	match := func(pat string) bool {
		if ok, _ := doublestar.Match(pat, command); ok {
			return true
		}
		ok, _ := doublestar.Match(pat, base)
		return ok
	}
	for _, pat := range deny {
		if match(pat) {
			return Verdict{Decision: Deny, Rule: pat}
		}
	}
	for _, pat := range allow {
		if match(pat) {
			return Verdict{Decision: Allow, Rule: pat}
		}
	}
	return Verdict{Decision: NoMatch}
}
