package remote

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
)

// StubSession is an in-memory Session. It renders a fixed gradient and
// records every input event, for tests and the stub server.
type StubSession struct {
	mu      sync.Mutex
	screen  *image.RGBA
	events  []string
	held    map[string]bool
	buttons map[Button]bool
	x, y    int
	closed  bool
}

var _ Session = (*StubSession)(nil)

// NewStubSession creates a stub screen of the given size.
func NewStubSession(width, height int) *StubSession {
	screen := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			screen.SetRGBA(x, y, color.RGBA{
				R: uint8(x * 255 / max(width-1, 1)),
				G: uint8(y * 255 / max(height-1, 1)),
				B: 0x80,
				A: 0xff,
			})
		}
	}
	return &StubSession{
		screen:  screen,
		held:    make(map[string]bool),
		buttons: make(map[Button]bool),
	}
}

// StubDialer returns a Dialer that always hands out s.
func StubDialer(s *StubSession) Dialer {
	return DialerFunc(func(ctx context.Context, _ Config) (Session, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return s, nil
	})
}

// Events returns a copy of the recorded events, e.g. "keydown Shift_L",
// "type hi", "move 3,4", "buttonup left".
func (s *StubSession) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

// Held reports whether key is currently down.
func (s *StubSession) Held(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held[key]
}

// Pointer returns the pointer position and whether any button is down.
func (s *StubSession) Pointer() (x, y int, pressed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.x, s.y, len(s.buttons) > 0
}

// Closed reports whether Close was called.
func (s *StubSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *StubSession) record(format string, args ...any) error {
	if s.closed {
		return ErrClosed
	}
	s.events = append(s.events, fmt.Sprintf(format, args...))
	return nil
}

func (s *StubSession) Resolution() (int, int) {
	b := s.screen.Bounds()
	return b.Dx(), b.Dy()
}

func (s *StubSession) Capture(ctx context.Context, r image.Rectangle) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, h := s.Resolution()
	bounds, err := captureBounds(r, w, h)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			out.SetRGBA(x, y, s.screen.RGBAAt(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
	s.events = append(s.events, fmt.Sprintf("capture %v", bounds))
	return out, nil
}

func (s *StubSession) KeyDown(_ context.Context, key string) error {
	if _, err := Keysym(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("keydown %s", key); err != nil {
		return err
	}
	s.held[key] = true
	return nil
}

func (s *StubSession) KeyUp(_ context.Context, key string) error {
	if _, err := Keysym(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("keyup %s", key); err != nil {
		return err
	}
	delete(s.held, key)
	return nil
}

func (s *StubSession) Type(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record("type %s", text)
}

func (s *StubSession) MoveMouse(_ context.Context, x, y int) error {
	w, h := s.Resolution()
	if err := checkPoint(x, y, w, h); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("move %d,%d", x, y); err != nil {
		return err
	}
	s.x, s.y = x, y
	return nil
}

func (s *StubSession) ButtonDown(_ context.Context, b Button) error {
	if err := checkButton(b); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("buttondown %s", b); err != nil {
		return err
	}
	s.buttons[b] = true
	return nil
}

func (s *StubSession) ButtonUp(_ context.Context, b Button) error {
	if err := checkButton(b); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("buttonup %s", b); err != nil {
		return err
	}
	delete(s.buttons, b)
	return nil
}

func (s *StubSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
