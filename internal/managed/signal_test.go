package managed

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

type countingCancel struct {
	calls atomic.Int32
	cause atomic.Value
}

func (c *countingCancel) cancel(cause error) {
	c.calls.Add(1)
	c.cause.Store(cause)
}

func TestSignalBridgeStartIsReady(t *testing.T) {
	src := &fakeSignals{}
	cc := &countingCancel{}
	b := NewSignalBridge(src, nil, NewShutdownEvent(), cc.cancel, discardLogger())

	if b.State() != BridgeIdle {
		t.Fatalf("State = %v, want idle", b.State())
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-b.Ready():
	default:
		t.Fatal("Ready not closed after Start")
	}
	if b.State() != BridgeListening {
		t.Errorf("State = %v, want listening", b.State())
	}

	if err := b.Start(); !errors.Is(err, ErrLifecycleViolation) {
		t.Errorf("second Start = %v, want ErrLifecycleViolation", err)
	}
}

func TestSignalBridgeTriggersOnce(t *testing.T) {
	src := &fakeSignals{}
	cc := &countingCancel{}
	event := NewShutdownEvent()
	b := NewSignalBridge(src, nil, event, cc.cancel, discardLogger())
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Listen(ctx) }()

	src.Send(t, syscall.SIGTERM)
	src.Send(t, os.Interrupt)

	deadline := time.After(2 * time.Second)
	for b.Received() < 2 {
		select {
		case <-deadline:
			t.Fatalf("Received = %d, want 2", b.Received())
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Listen = %v, want nil", err)
	}

	if got := cc.calls.Load(); got != 1 {
		t.Errorf("cancel called %d times, want 1", got)
	}
	if !b.Triggered() {
		t.Error("bridge not triggered")
	}
	if !event.IsSet() {
		t.Error("shutdown event not set")
	}
	if event.Signal() != syscall.SIGTERM {
		t.Errorf("event signal = %v, want SIGTERM", event.Signal())
	}

	var cerr *CancelledError
	cause, _ := cc.cause.Load().(error)
	if !errors.As(cause, &cerr) || cerr.Signal != syscall.SIGTERM {
		t.Errorf("cancel cause = %v, want CancelledError{SIGTERM}", cause)
	}
}

func TestSignalBridgeListenStopsOnContext(t *testing.T) {
	b := NewSignalBridge(&fakeSignals{}, nil, NewShutdownEvent(), func(error) {}, discardLogger())
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.Listen(ctx); err != nil {
		t.Errorf("Listen = %v, want nil", err)
	}
	if b.Triggered() {
		t.Error("bridge triggered without a signal")
	}
}

func TestSignalBridgeStopIsIdempotent(t *testing.T) {
	src := &fakeSignals{}
	b := NewSignalBridge(src, nil, NewShutdownEvent(), func(error) {}, discardLogger())
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	b.Stop()
	b.Stop()

	if got := src.Stopped(); got != 1 {
		t.Errorf("source Stop called %d times, want 1", got)
	}
}

func TestShutdownEventSetOnce(t *testing.T) {
	e := NewShutdownEvent()
	if e.IsSet() {
		t.Fatal("new event is set")
	}

	if !e.Set(syscall.SIGTERM) {
		t.Error("first Set = false, want true")
	}
	if e.Set(os.Interrupt) {
		t.Error("second Set = true, want false")
	}
	if e.Signal() != syscall.SIGTERM {
		t.Errorf("Signal = %v, want SIGTERM", e.Signal())
	}

	select {
	case <-e.Done():
	default:
		t.Error("Done not closed after Set")
	}
}

func TestSignalName(t *testing.T) {
	tests := []struct {
		sig  os.Signal
		want string
	}{
		{os.Interrupt, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := SignalName(tt.sig); got != tt.want {
			t.Errorf("SignalName(%v) = %q, want %q", tt.sig, got, tt.want)
		}
	}
}

func TestBridgeStateString(t *testing.T) {
	tests := []struct {
		state BridgeState
		want  string
	}{
		{BridgeIdle, "idle"},
		{BridgeListening, "listening"},
		{BridgeTriggered, "triggered"},
		{BridgeSettled, "settled"},
		{BridgeState(9), "BridgeState(9)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestManualSignals(t *testing.T) {
	src := NewManualSignals()
	ch := make(chan os.Signal, 1)

	if n := src.Send(os.Interrupt); n != 0 {
		t.Errorf("Send with no subscribers = %d, want 0", n)
	}
	src.Notify(ch)
	if n := src.Send(os.Interrupt); n != 1 {
		t.Errorf("Send = %d, want 1", n)
	}
	if got := <-ch; got != os.Interrupt {
		t.Errorf("received %v, want interrupt", got)
	}
	src.Stop(ch)
	if n := src.Send(os.Interrupt); n != 0 {
		t.Errorf("Send after Stop = %d, want 0", n)
	}
}
