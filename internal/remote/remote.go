// Package remote defines the remote desktop session used by the tool
// server, with an RFB (VNC) implementation and an in-memory stub.
package remote

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net"
	"strconv"
	"time"
)

var (
	// ErrConnection is returned when the remote host cannot be reached.
	ErrConnection = errors.New("remote: connection failed")
	// ErrAuth is returned when the remote host rejects the handshake.
	ErrAuth = errors.New("remote: authentication failed")
	// ErrTimeout is returned when connecting or waiting on the remote exceeds
	// the configured timeout.
	ErrTimeout = errors.New("remote: timed out")
	// ErrUnknownKey is returned for key names with no keysym.
	ErrUnknownKey = errors.New("remote: unknown key")
	// ErrInvalidButton is returned for mouse buttons outside 0-4.
	ErrInvalidButton = errors.New("remote: invalid mouse button")
	// ErrOutOfBounds is returned for coordinates or rectangles outside the screen.
	ErrOutOfBounds = errors.New("remote: outside screen bounds")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("remote: session closed")
)

// Config describes how to reach the remote desktop.
type Config struct {
	Host     string
	Port     int
	Timeout  time.Duration
	Username string
	Password string
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Button identifies a mouse button.
type Button int

// Mouse buttons, numbered as the tools expose them.
const (
	ButtonLeft Button = iota
	ButtonMiddle
	ButtonRight
	ButtonScrollUp
	ButtonScrollDown
)

// Valid reports whether b is a known button.
func (b Button) Valid() bool {
	return b >= ButtonLeft && b <= ButtonScrollDown
}

func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonMiddle:
		return "middle"
	case ButtonRight:
		return "right"
	case ButtonScrollUp:
		return "scroll-up"
	case ButtonScrollDown:
		return "scroll-down"
	default:
		return "button(" + strconv.Itoa(int(b)) + ")"
	}
}

func checkButton(b Button) error {
	if !b.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidButton, int(b))
	}
	return nil
}

// Session is a connected remote desktop. Implementations are safe for
// concurrent use.
type Session interface {
	// Resolution returns the framebuffer size. All coordinates use this space.
	Resolution() (width, height int)
	// Capture returns the pixels inside r. An empty r captures the whole screen.
	Capture(ctx context.Context, r image.Rectangle) (*image.RGBA, error)
	KeyDown(ctx context.Context, key string) error
	KeyUp(ctx context.Context, key string) error
	// Type sends text as a sequence of key strokes.
	Type(ctx context.Context, text string) error
	MoveMouse(ctx context.Context, x, y int) error
	ButtonDown(ctx context.Context, b Button) error
	ButtonUp(ctx context.Context, b Button) error
	Close() error
}

// Dialer opens sessions.
type Dialer interface {
	Connect(ctx context.Context, cfg Config) (Session, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, cfg Config) (Session, error)

// Connect calls f.
func (f DialerFunc) Connect(ctx context.Context, cfg Config) (Session, error) {
	return f(ctx, cfg)
}

// captureBounds resolves r against a screen of the given size.
func captureBounds(r image.Rectangle, width, height int) (image.Rectangle, error) {
	screen := image.Rect(0, 0, width, height)
	if r.Empty() {
		return screen, nil
	}
	if !r.In(screen) {
		return image.Rectangle{}, fmt.Errorf("%w: %v not in %v", ErrOutOfBounds, r, screen)
	}
	return r, nil
}

func checkPoint(x, y, width, height int) error {
	if x < 0 || y < 0 || x >= width || y >= height {
		return fmt.Errorf("%w: (%d, %d) not in %dx%d", ErrOutOfBounds, x, y, width, height)
	}
	return nil
}
