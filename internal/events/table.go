// Package events owns the live connection handles of one plan
// execution. An event_source node that succeeds yields an opaque
// integer handle into a Table; reader goroutines pump whatever arrives
// on the wire into per-handle queues, and event_poll consumes queued
// records first-come. Handles never outlive the run that opened them.
package events

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/blueprint/internal/infrastructure/config"
	"github.com/GriffinCanCode/blueprint/internal/infrastructure/logging"
	"github.com/GriffinCanCode/blueprint/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

// EventType tags an event record.
type EventType string

const (
	EventData   EventType = "data"
	EventAccept EventType = "accept"
	EventClosed EventType = "closed"
	EventError  EventType = "error"
)

// Event is one record queued on a handle.
type Event struct {
	Type    EventType
	Handle  int64
	Data    []byte // data events
	Child   int64  // accept events: the adopted connection's handle
	Host    string // udp data events: sender address
	Port    int
	Message string // error events
}

// Value renders the record the way scripts see it: a struct with the
// event type and a kind-specific data struct.
func (e Event) Value() value.Value {
	fields := []value.Field{{Name: "handle", Val: value.Int(e.Handle)}}
	switch e.Type {
	case EventData:
		fields = append(fields, value.Field{Name: "data", Val: value.Bytes(e.Data)})
		if e.Host != "" {
			fields = append(fields,
				value.Field{Name: "host", Val: value.Str(e.Host)},
				value.Field{Name: "port", Val: value.Int(int64(e.Port))})
		}
	case EventAccept:
		fields = append(fields, value.Field{Name: "child", Val: value.Int(e.Child)})
	case EventError:
		fields = append(fields, value.Field{Name: "message", Val: value.Str(e.Message)})
	}
	return value.Struct(
		value.Field{Name: "type", Val: value.Str(string(e.Type))},
		value.Field{Name: "data", Val: value.StructOf(fields)},
	)
}

// source is one live handle. Exactly one of conn, ln, pconn is set.
type source struct {
	id        int64
	transport string // "tcp", "udp", "unix"
	conn      net.Conn
	ln        net.Listener
	pconn     *net.UDPConn
	queue     []Event
	closed    bool
}

func (s *source) shutdown() {
	switch {
	case s.conn != nil:
		s.conn.Close()
	case s.ln != nil:
		s.ln.Close()
	case s.pconn != nil:
		s.pconn.Close()
	}
}

// Table is the per-run handle registry. All bookkeeping is under one
// mutex; network reads and writes happen outside it.
type Table struct {
	cfg     config.EventsConfig
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu      sync.Mutex
	next    int64
	sources map[int64]*source
	// changed is closed and replaced on every queue append, waking
	// every blocked poll to rescan.
	changed chan struct{}
	done    bool
}

// NewTable builds an empty handle table for one run.
func NewTable(cfg config.EventsConfig, log *logging.Logger, metrics *monitoring.Metrics) *Table {
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4096
	}
	return &Table{
		cfg:     cfg,
		log:     log.Named("events"),
		metrics: metrics,
		sources: make(map[int64]*source),
		changed: make(chan struct{}),
	}
}

// Open establishes the requested source and returns its handle.
func (t *Table) Open(ctx context.Context, kind, host string, port int, path string) (int64, error) {
	var (
		s   *source
		err error
	)
	switch kind {
	case plan.SourceTCPConnect:
		s, err = t.dialStream(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	case plan.SourceUnixConnect:
		s, err = t.dialStream(ctx, "unix", path)
	case plan.SourceTCPListen:
		s, err = t.listenStream(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	case plan.SourceUnixListen:
		s, err = t.listenStream(ctx, "unix", path)
	case plan.SourceUDPBind:
		s, err = t.bindPacket(ctx, net.JoinHostPort(host, strconv.Itoa(port)))
	default:
		return 0, errs.Scriptf("unknown event source kind %q", kind)
	}
	if err != nil {
		return 0, err
	}
	t.log.Debug("source opened",
		zap.Int64("handle", s.id),
		zap.String("kind", kind))
	return s.id, nil
}

func (t *Table) dialStream(ctx context.Context, network, addr string) (*source, error) {
	dialer := net.Dialer{Timeout: t.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, errs.OperationWrap(0, err)
	}
	s := t.register(&source{transport: network, conn: conn})
	if s == nil {
		conn.Close()
		return nil, errs.Operationf(0, "event table is shut down")
	}
	go t.pumpConn(s)
	return s, nil
}

func (t *Table) listenStream(ctx context.Context, network, addr string) (*source, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, network, addr)
	if err != nil {
		return nil, errs.OperationWrap(0, err)
	}
	s := t.register(&source{transport: network, ln: ln})
	if s == nil {
		ln.Close()
		return nil, errs.Operationf(0, "event table is shut down")
	}
	go t.pumpAccept(s)
	return s, nil
}

func (t *Table) bindPacket(ctx context.Context, addr string) (*source, error) {
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, errs.OperationWrap(0, err)
	}
	udp, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, errs.Operationf(0, "udp bind produced %T", pc)
	}
	s := t.register(&source{transport: "udp", pconn: udp})
	if s == nil {
		udp.Close()
		return nil, errs.Operationf(0, "event table is shut down")
	}
	go t.pumpPacket(s)
	return s, nil
}

// register assigns the next handle. It returns nil after shutdown so
// openers can release whatever they just created.
func (t *Table) register(s *source) *source {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	t.next++
	s.id = t.next
	t.sources[s.id] = s
	if t.metrics != nil {
		t.metrics.SetEventSources(t.liveLocked())
	}
	return s
}

// adopt registers an accepted connection under its own handle.
func (t *Table) adopt(conn net.Conn, transport string) *source {
	s := t.register(&source{transport: transport, conn: conn})
	if s == nil {
		conn.Close()
		return nil
	}
	go t.pumpConn(s)
	return s
}

// pumpConn reads the stream into the handle's queue until the peer goes
// away. EOF becomes a closed event; errors after a script-side close
// are just teardown noise.
func (t *Table) pumpConn(s *source) {
	buf := make([]byte, t.cfg.BufferSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			t.publish(s, Event{Type: EventData, Handle: s.id, Data: data})
		}
		if err != nil {
			switch {
			case errors.Is(err, net.ErrClosed):
			case errors.Is(err, io.EOF):
				t.publish(s, Event{Type: EventClosed, Handle: s.id})
			default:
				t.publish(s, Event{Type: EventError, Handle: s.id, Message: err.Error()})
			}
			return
		}
	}
}

// pumpAccept turns incoming connections into accept events carrying a
// fresh child handle.
func (t *Table) pumpAccept(s *source) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				t.publish(s, Event{Type: EventError, Handle: s.id, Message: err.Error()})
			}
			return
		}
		child := t.adopt(conn, s.transport)
		if child == nil {
			return
		}
		t.publish(s, Event{Type: EventAccept, Handle: s.id, Child: child.id})
	}
}

func (t *Table) pumpPacket(s *source) {
	buf := make([]byte, t.cfg.BufferSize)
	for {
		n, addr, err := s.pconn.ReadFromUDP(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			e := Event{Type: EventData, Handle: s.id, Data: data}
			if addr != nil {
				e.Host = addr.IP.String()
				e.Port = addr.Port
			}
			t.publish(s, e)
		}
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				t.publish(s, Event{Type: EventError, Handle: s.id, Message: err.Error()})
			}
			return
		}
	}
}

// publish appends to the handle's queue and wakes every blocked poll.
func (t *Table) publish(s *source, e Event) {
	t.mu.Lock()
	if t.done || s.closed {
		t.mu.Unlock()
		return
	}
	s.queue = append(s.queue, e)
	close(t.changed)
	t.changed = make(chan struct{})
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.RecordEvent(s.transport, "in")
	}
	t.log.Debug("event queued",
		zap.Int64("handle", s.id),
		zap.String("type", string(e.Type)))
}

// Poll consumes the first available event across the listed handles,
// scanning in listed order. A nil event with a nil error means the
// timeout elapsed: polls time out to null, they do not fail. Each
// queued event is consumed exactly once even under concurrent polls.
func (t *Table) Poll(ctx context.Context, handles []int64, timeout time.Duration) (*Event, error) {
	if timeout < 0 {
		return nil, errs.Scriptf("event_poll() timeout_ms must not be negative")
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		t.mu.Lock()
		for _, h := range handles {
			s, ok := t.sources[h]
			if !ok {
				t.mu.Unlock()
				return nil, errs.Operationf(0, "unknown event source handle %d", h)
			}
			if s.closed {
				t.mu.Unlock()
				return nil, errs.Operationf(0, "event source handle %d is closed", h)
			}
			if len(s.queue) > 0 {
				e := s.queue[0]
				s.queue = s.queue[1:]
				t.mu.Unlock()
				return &e, nil
			}
		}
		wait := t.changed
		t.mu.Unlock()

		select {
		case <-wait:
		case <-deadline.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Write sends data through the handle and reports the byte count.
// Streams ignore host and port; UDP writes need both.
func (t *Table) Write(ctx context.Context, h int64, data []byte, host string, port int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.mu.Lock()
	s, ok := t.sources[h]
	if !ok {
		t.mu.Unlock()
		return 0, errs.Operationf(0, "unknown event source handle %d", h)
	}
	if s.closed {
		t.mu.Unlock()
		return 0, errs.Operationf(0, "event source handle %d is closed", h)
	}
	t.mu.Unlock()

	var (
		n   int
		err error
	)
	switch {
	case s.ln != nil:
		return 0, errs.Operationf(0, "cannot write to a listening handle")
	case s.pconn != nil:
		if host == "" {
			return 0, errs.Operationf(0, "udp event_write needs a host and port")
		}
		var addr *net.UDPAddr
		addr, err = net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			return 0, errs.OperationWrap(0, err)
		}
		if t.cfg.WriteTimeout > 0 {
			s.pconn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
		}
		n, err = s.pconn.WriteToUDP(data, addr)
	default:
		if t.cfg.WriteTimeout > 0 {
			s.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
		}
		n, err = s.conn.Write(data)
	}
	if err != nil {
		return n, errs.OperationWrap(0, err)
	}
	if t.metrics != nil {
		t.metrics.RecordEvent(s.transport, "out")
	}
	return n, nil
}

// Close tears one handle down. Queued events drop with it, and every
// later operation on the handle fails with a closed error.
func (t *Table) Close(h int64) error {
	t.mu.Lock()
	s, ok := t.sources[h]
	if !ok {
		t.mu.Unlock()
		return errs.Operationf(0, "unknown event source handle %d", h)
	}
	if s.closed {
		t.mu.Unlock()
		return errs.Operationf(0, "event source handle %d is closed", h)
	}
	s.closed = true
	s.queue = nil
	live := t.liveLocked()
	t.mu.Unlock()

	s.shutdown()
	if t.metrics != nil {
		t.metrics.SetEventSources(live)
	}
	t.log.Debug("source closed", zap.Int64("handle", h))
	return nil
}

// Shutdown releases every live handle. The run that opened the table
// calls this exactly once when it finishes, successful or not.
func (t *Table) Shutdown() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	var open []*source
	for _, s := range t.sources {
		if !s.closed {
			s.closed = true
			s.queue = nil
			open = append(open, s)
		}
	}
	close(t.changed)
	t.changed = make(chan struct{})
	t.mu.Unlock()

	for _, s := range open {
		s.shutdown()
	}
	if t.metrics != nil {
		t.metrics.SetEventSources(0)
	}
	if len(open) > 0 {
		t.log.Debug("table shut down", zap.Int("released", len(open)))
	}
}

func (t *Table) liveLocked() int {
	live := 0
	for _, s := range t.sources {
		if !s.closed {
			live++
		}
	}
	return live
}
