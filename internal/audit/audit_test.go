package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), NewEvent(LoginFailed, "a1", testTime))
	d.Close()
	if d.Dropped() != 0 || d.Delivered() != 0 {
		t.Fatal("nil dispatcher must report zero counters")
	}
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	for _, typ := range []EventType{LoginFailed, TokenReuse, LoginOtpRequested} {
		d.Emit(context.Background(), NewEvent(typ, "a1", testTime))
	}
	d.Close()

	want := []EventType{LoginFailed, TokenReuse, LoginOtpRequested}
	for i, typ := range want {
		select {
		case ev := <-sink.Events():
			if ev.Type != typ {
				t.Fatalf("event %d: type %v, want %v", i, ev.Type, typ)
			}
		default:
			t.Fatalf("event %d missing after Close drained the buffer", i)
		}
	}
	if d.Delivered() != 3 {
		t.Fatalf("Delivered = %d, want 3", d.Delivered())
	}
}

func TestDropIfFullDoesNotBlock(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			d.Emit(context.Background(), NewEvent(LoginFailed, "a1", testTime))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestBlockingEmitWaitsForSpace(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), NewEvent(LoginFailed, "a1", testTime))
	d.Emit(context.Background(), NewEvent(LoginFailed, "a1", testTime))

	done := make(chan struct{})
	go func() {
		d.Emit(context.Background(), NewEvent(TokenReuse, "a1", testTime))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestBlockingEmitHonoursContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), NewEvent(LoginFailed, "a1", testTime))
	d.Emit(context.Background(), NewEvent(LoginFailed, "a1", testTime))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Emit(ctx, NewEvent(LoginFailed, "a1", testTime))
	if d.Dropped() != 1 {
		t.Fatalf("Dropped = %d, want 1", d.Dropped())
	}
}

func TestCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, DropIfFull: true}, sink)

	d.Emit(context.Background(), NewEvent(LoginFailed, "a1", testTime))
	d.Close()
	d.Close()
	d.Emit(context.Background(), NewEvent(LoginFailed, "a1", testTime))

	if got := sink.count.Load(); got != 1 {
		t.Fatalf("sink saw %d events, want 1", got)
	}
}

func TestJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)

	ev := NewEvent(TokenReuse, "a1", testTime)
	ev.IP = "203.0.113.7"
	ev.Metadata = map[string]string{"token_id": "t1"}
	sink.Emit(context.Background(), ev)
	sink.Emit(context.Background(), NewEvent(LoginFailed, "a2", testTime))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var decoded Event
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != TokenReuse || decoded.AccountID != "a1" || decoded.IP != "203.0.113.7" {
		t.Fatalf("unexpected event: %+v", decoded)
	}
	if !strings.Contains(lines[0], `"type":"token_reuse"`) {
		t.Fatalf("type should be written by name: %s", lines[0])
	}
}

func TestSlogSinkLogsAtWarn(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSlogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	ev := NewEvent(LoginFailed, "a1", testTime)
	ev.UserAgent = "curl/8"
	sink.Emit(context.Background(), ev)

	out := buf.String()
	for _, want := range []string{`"level":"WARN"`, `"type":"login_failed"`, `"user_agent":"curl/8"`, `"component":"security"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log line missing %s: %s", want, out)
		}
	}
}

func TestEventTypeNames(t *testing.T) {
	if LoginFailed != 1 || LoginOtpRequested != 5 {
		t.Fatal("event type values must stay stable")
	}
	var typ EventType
	if err := typ.UnmarshalText([]byte("suspicious_login_attempt")); err != nil || typ != SuspiciousLoginAttempt {
		t.Fatalf("UnmarshalText = %v, %v", typ, err)
	}
	if err := typ.UnmarshalText([]byte("nope")); err == nil {
		t.Fatal("expected unknown name to fail")
	}
	if EventType(42).String() != "event(42)" {
		t.Fatalf("unexpected fallback name %q", EventType(42).String())
	}
}

func TestNewEventIDsAreUnique(t *testing.T) {
	a := NewEvent(LoginFailed, "a1", testTime)
	b := NewEvent(LoginFailed, "a1", testTime)
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct ids, got %q and %q", a.ID, b.ID)
	}
}
