package remote

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	vnc "github.com/mitchellh/go-vnc"
)

// messageBuffer sizes the channel between the RFB read loop and the session.
const messageBuffer = 16

// VNCDialer connects to RFB servers.
type VNCDialer struct {
	logger *slog.Logger
}

// NewVNCDialer creates a dialer that logs to logger.
func NewVNCDialer(logger *slog.Logger) *VNCDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &VNCDialer{logger: logger}
}

// Connect dials cfg.Addr and performs the RFB handshake. cfg.Timeout bounds
// the dial and the handshake together. There are no retries.
func (d *VNCDialer) Connect(ctx context.Context, cfg Config) (Session, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Addr())
	if err != nil {
		return nil, classifyDialError(cfg.Addr(), err)
	}
	return newVNCSession(ctx, conn, cfg, d.logger)
}

func newVNCSession(ctx context.Context, conn net.Conn, cfg Config, logger *slog.Logger) (*vncSession, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: set deadline: %v", ErrConnection, err)
		}
	}

	// The RFB handshake has no context support; closing the conn unblocks it.
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	msgs := make(chan vnc.ServerMessage, messageBuffer)
	// A nil Auth list makes the client offer only the None security type.
	var auth []vnc.ClientAuth
	if cfg.Password != "" {
		auth = []vnc.ClientAuth{&vnc.PasswordAuth{Password: cfg.Password}}
	}
	if cfg.Username != "" {
		logger.Debug("username ignored by RFB password authentication", "username", cfg.Username)
	}

	client, err := vnc.Client(conn, &vnc.ClientConfig{
		Auth:            auth,
		Exclusive:       false,
		ServerMessageCh: msgs,
	})
	if !stop() {
		if client != nil {
			client.Close()
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: handshake with %s", ErrTimeout, cfg.Addr())
		}
		return nil, ctx.Err()
	}
	if err != nil {
		conn.Close()
		return nil, classifyHandshakeError(cfg.Addr(), err)
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: clear deadline: %v", ErrConnection, err)
	}

	if err := client.SetEncodings([]vnc.Encoding{new(vnc.RawEncoding)}); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: set encodings: %v", ErrConnection, err)
	}

	width, height := int(client.FrameBufferWidth), int(client.FrameBufferHeight)
	s := &vncSession{
		client:  client,
		msgs:    msgs,
		logger:  logger.With("remote", cfg.Addr()),
		timeout: cfg.Timeout,
		width:   width,
		height:  height,
		format:  client.PixelFormat,
		fb:      image.NewRGBA(image.Rect(0, 0, width, height)),
		updated: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.pump()

	s.logger.Info("connected", "width", width, "height", height, "desktop", client.DesktopName)
	return s, nil
}

func classifyDialError(addr string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: dial %s: %v", ErrTimeout, addr, err)
	}
	return fmt.Errorf("%w: dial %s: %v", ErrConnection, addr, err)
}

func classifyHandshakeError(addr string, err error) error {
	var netErr net.Error
	if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: handshake with %s: %v", ErrTimeout, addr, err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "auth") || strings.Contains(msg, "security") {
		return fmt.Errorf("%w: %s: %v", ErrAuth, addr, err)
	}
	return fmt.Errorf("%w: handshake with %s: %v", ErrConnection, addr, err)
}

// vncSession keeps a local copy of the remote framebuffer, refreshed by
// FramebufferUpdate messages from the read loop.
type vncSession struct {
	client  *vnc.ClientConn
	msgs    chan vnc.ServerMessage
	logger  *slog.Logger
	timeout time.Duration
	width   int
	height  int
	format  vnc.PixelFormat

	// writeMu serializes client writes and guards the pointer state.
	writeMu sync.Mutex
	buttons vnc.ButtonMask
	px, py  uint16

	// captureMu serializes captures so each waits on its own update.
	captureMu sync.Mutex

	fbMu    sync.Mutex
	fb      *image.RGBA
	updated chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

var _ Session = (*vncSession)(nil)

func (s *vncSession) pump() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.msgs:
			switch m := msg.(type) {
			case *vnc.FramebufferUpdateMessage:
				s.apply(m)
			case *vnc.BellMessage:
				s.logger.Debug("bell")
			case *vnc.ServerCutTextMessage:
				s.logger.Debug("server cut text", "bytes", len(m.Text))
			}
		}
	}
}

func (s *vncSession) apply(m *vnc.FramebufferUpdateMessage) {
	s.fbMu.Lock()
	defer s.fbMu.Unlock()

	for _, rect := range m.Rectangles {
		raw, ok := rect.Enc.(*vnc.RawEncoding)
		if !ok {
			s.logger.Debug("skipping rectangle", "encoding", rect.Enc.Type())
			continue
		}
		drawRaw(s.fb, s.format, int(rect.X), int(rect.Y), int(rect.Width), int(rect.Height), raw.Colors)
	}
	close(s.updated)
	s.updated = make(chan struct{})
}

// drawRaw writes raw-encoded pixels into dst, scaling each channel from the
// server's pixel format range to 8 bits.
func drawRaw(dst *image.RGBA, pf vnc.PixelFormat, x0, y0, w, h int, colors []vnc.Color) {
	if len(colors) < w*h {
		return
	}
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			c := colors[row*w+col]
			dst.SetRGBA(x0+col, y0+row, color.RGBA{
				R: scaleChannel(c.R, pf.RedMax),
				G: scaleChannel(c.G, pf.GreenMax),
				B: scaleChannel(c.B, pf.BlueMax),
				A: 0xff,
			})
		}
	}
}

func scaleChannel(v, max uint16) uint8 {
	if max == 0 {
		return uint8(v >> 8)
	}
	if v >= max {
		return 0xff
	}
	return uint8(uint32(v) * 0xff / uint32(max))
}

func (s *vncSession) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *vncSession) Resolution() (int, int) {
	return s.width, s.height
}

func (s *vncSession) Capture(ctx context.Context, r image.Rectangle) (*image.RGBA, error) {
	bounds, err := captureBounds(r, s.width, s.height)
	if err != nil {
		return nil, err
	}

	s.captureMu.Lock()
	defer s.captureMu.Unlock()

	if _, ok := ctx.Deadline(); !ok && s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.fbMu.Lock()
	updated := s.updated
	s.fbMu.Unlock()

	err = s.write(func() error {
		return s.client.FramebufferUpdateRequest(false,
			uint16(bounds.Min.X), uint16(bounds.Min.Y),
			uint16(bounds.Dx()), uint16(bounds.Dy()))
	})
	if err != nil {
		return nil, fmt.Errorf("request framebuffer update: %w", err)
	}

	select {
	case <-updated:
	case <-s.done:
		return nil, ErrClosed
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: waiting for framebuffer update", ErrTimeout)
		}
		return nil, ctx.Err()
	}

	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	s.fbMu.Lock()
	for y := 0; y < bounds.Dy(); y++ {
		src := s.fb.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		copy(out.Pix[y*out.Stride:y*out.Stride+bounds.Dx()*4], s.fb.Pix[src:src+bounds.Dx()*4])
	}
	s.fbMu.Unlock()
	return out, nil
}

func (s *vncSession) write(fn func() error) error {
	if s.closed() {
		return ErrClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return fn()
}

func (s *vncSession) KeyDown(_ context.Context, key string) error {
	sym, err := Keysym(key)
	if err != nil {
		return err
	}
	return s.write(func() error { return s.client.KeyEvent(sym, true) })
}

func (s *vncSession) KeyUp(_ context.Context, key string) error {
	sym, err := Keysym(key)
	if err != nil {
		return err
	}
	return s.write(func() error { return s.client.KeyEvent(sym, false) })
}

func (s *vncSession) Type(ctx context.Context, text string) error {
	for _, r := range text {
		if err := ctx.Err(); err != nil {
			return err
		}
		sym := runeKeysym(r)
		err := s.write(func() error {
			if err := s.client.KeyEvent(sym, true); err != nil {
				return err
			}
			return s.client.KeyEvent(sym, false)
		})
		if err != nil {
			return fmt.Errorf("type %q: %w", r, err)
		}
	}
	return nil
}

func (s *vncSession) MoveMouse(_ context.Context, x, y int) error {
	if err := checkPoint(x, y, s.width, s.height); err != nil {
		return err
	}
	return s.write(func() error {
		s.px, s.py = uint16(x), uint16(y)
		return s.client.PointerEvent(s.buttons, s.px, s.py)
	})
}

func buttonMask(b Button) vnc.ButtonMask {
	switch b {
	case ButtonMiddle:
		return vnc.ButtonMiddle
	case ButtonRight:
		return vnc.ButtonRight
	case ButtonScrollUp:
		return vnc.Button4
	case ButtonScrollDown:
		return vnc.Button5
	default:
		return vnc.ButtonLeft
	}
}

func (s *vncSession) ButtonDown(_ context.Context, b Button) error {
	if err := checkButton(b); err != nil {
		return err
	}
	return s.write(func() error {
		s.buttons |= buttonMask(b)
		return s.client.PointerEvent(s.buttons, s.px, s.py)
	})
}

func (s *vncSession) ButtonUp(_ context.Context, b Button) error {
	if err := checkButton(b); err != nil {
		return err
	}
	return s.write(func() error {
		s.buttons &^= buttonMask(b)
		return s.client.PointerEvent(s.buttons, s.px, s.py)
	})
}

func (s *vncSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		err = s.client.Close()
		s.writeMu.Unlock()
		s.logger.Info("disconnected")
	})
	return err
}
