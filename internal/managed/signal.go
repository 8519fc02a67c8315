package managed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// BridgeState is the state of a SignalBridge.
type BridgeState int32

// Bridge states. Triggered and Settled are terminal.
const (
	BridgeIdle BridgeState = iota
	BridgeListening
	BridgeTriggered
	// BridgeSettled means the body finished before any signal arrived.
	BridgeSettled
)

func (s BridgeState) String() string {
	switch s {
	case BridgeIdle:
		return "idle"
	case BridgeListening:
		return "listening"
	case BridgeTriggered:
		return "triggered"
	case BridgeSettled:
		return "settled"
	default:
		return fmt.Sprintf("BridgeState(%d)", int32(s))
	}
}

// SignalSource delivers process signals. OSSignals is backed by os/signal;
// tests substitute their own.
type SignalSource interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

type osSignals struct{}

func (osSignals) Notify(c chan<- os.Signal, sig ...os.Signal) { signal.Notify(c, sig...) }
func (osSignals) Stop(c chan<- os.Signal)                     { signal.Stop(c) }

// OSSignals is the SignalSource for real process signals.
var OSSignals SignalSource = osSignals{}

// ManualSignals is a SignalSource driven by Send instead of the OS.
type ManualSignals struct {
	mu   sync.Mutex
	subs map[chan<- os.Signal]bool
}

// NewManualSignals returns a source with no subscribers.
func NewManualSignals() *ManualSignals {
	return &ManualSignals{subs: make(map[chan<- os.Signal]bool)}
}

func (m *ManualSignals) Notify(c chan<- os.Signal, _ ...os.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[c] = true
}

func (m *ManualSignals) Stop(c chan<- os.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, c)
}

// Send delivers sig to every subscriber without blocking and reports how
// many received it.
func (m *ManualSignals) Send(sig os.Signal) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for c := range m.subs {
		select {
		case c <- sig:
			n++
		default:
		}
	}
	return n
}

// DefaultSignals returns the interrupt and termination signals.
func DefaultSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}

// SignalName returns the conventional name of sig (SIGINT, SIGTERM, ...).
func SignalName(sig os.Signal) string {
	switch sig {
	case nil:
		return ""
	case os.Interrupt:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return sig.String()
	}
}

// SignalBridge turns the first terminal signal into a cancellation of the run
// scope. It never re-arms: later signals are observed and logged only.
type SignalBridge struct {
	source  SignalSource
	signals []os.Signal
	event   *ShutdownEvent
	cancel  context.CancelCauseFunc
	logger  *slog.Logger

	ch       chan os.Signal
	ready    chan struct{}
	state    atomic.Int32
	received atomic.Int32
	stopOnce sync.Once
}

// NewSignalBridge returns an idle bridge that will set event and call cancel
// on the first of signals delivered by source.
func NewSignalBridge(source SignalSource, signals []os.Signal, event *ShutdownEvent, cancel context.CancelCauseFunc, logger *slog.Logger) *SignalBridge {
	if source == nil {
		source = OSSignals
	}
	if len(signals) == 0 {
		signals = DefaultSignals()
	}
	return &SignalBridge{
		source:  source,
		signals: signals,
		event:   event,
		cancel:  cancel,
		logger:  logger,
		ch:      make(chan os.Signal, len(signals)+1),
		ready:   make(chan struct{}),
	}
}

// Start installs signal notification. When it returns the handlers are in
// place, so a signal sent right after cannot be missed.
func (b *SignalBridge) Start() error {
	if !b.state.CompareAndSwap(int32(BridgeIdle), int32(BridgeListening)) {
		return fmt.Errorf("%w: signal bridge already started", ErrLifecycleViolation)
	}
	b.source.Notify(b.ch, b.signals...)
	close(b.ready)
	return nil
}

// Ready is closed once Start has installed notification.
func (b *SignalBridge) Ready() <-chan struct{} {
	return b.ready
}

// Listen consumes signals until ctx is done. It always returns nil.
func (b *SignalBridge) Listen(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-b.ch:
			b.handle(sig)
		}
	}
}

func (b *SignalBridge) handle(sig os.Signal) {
	name := SignalName(sig)
	n := b.received.Add(1)
	signalsTotal.WithLabelValues(name).Inc()

	if !b.state.CompareAndSwap(int32(BridgeListening), int32(BridgeTriggered)) {
		if b.State() == BridgeSettled {
			b.logger.Info("run already finished, signal ignored", "signal", name)
			return
		}
		b.logger.Info("already shutting down", "signal", name, "received", n)
		return
	}

	b.logger.Info("received signal, shutting down", "signal", name)
	b.event.Set(sig)
	b.cancel(&CancelledError{Signal: sig})
}

// Settle records that the body finished first. Signals handled afterwards no
// longer cancel the run. It reports false when a signal already won.
func (b *SignalBridge) Settle() bool {
	return b.state.CompareAndSwap(int32(BridgeListening), int32(BridgeSettled))
}

// Stop removes signal notification. It is safe to call more than once.
func (b *SignalBridge) Stop() {
	b.stopOnce.Do(func() {
		b.source.Stop(b.ch)
	})
}

// State returns the current bridge state.
func (b *SignalBridge) State() BridgeState {
	return BridgeState(b.state.Load())
}

// Triggered reports whether a signal has cancelled the run.
func (b *SignalBridge) Triggered() bool {
	return b.State() == BridgeTriggered
}

// Received returns how many signals the bridge has observed.
func (b *SignalBridge) Received() int {
	return int(b.received.Load())
}
