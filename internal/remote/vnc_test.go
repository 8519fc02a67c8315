package remote

import (
	"context"
	"encoding/binary"
	"errors"
	"image"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// rfbEvent is a client-to-server input message seen by fakeRFB.
type rfbEvent struct {
	kind   byte // 4 key, 5 pointer
	down   bool
	keysym uint32
	mask   uint8
	x, y   uint16
}

// fakeRFB is a minimal RFB 3.8 server with a 32bpp true-colour framebuffer
// whose pixel (x, y) is (x*50, y*60, 7).
type fakeRFB struct {
	t        *testing.T
	ln       net.Listener
	width    uint16
	height   uint16
	security byte
	events   chan rfbEvent
}

func startFakeRFB(t *testing.T, width, height uint16, security byte) *fakeRFB {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeRFB{t: t, ln: ln, width: width, height: height, security: security, events: make(chan rfbEvent, 64)}
	t.Cleanup(func() { ln.Close() })
	go f.serve()
	return f
}

func (f *fakeRFB) config() Config {
	host, port, _ := net.SplitHostPort(f.ln.Addr().String())
	p, _ := strconv.Atoi(port)
	return Config{Host: host, Port: p, Timeout: 2 * time.Second}
}

func (f *fakeRFB) serve() {
	conn, err := f.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("RFB 003.008\n")); err != nil {
		return
	}
	var version [12]byte
	if _, err := io.ReadFull(conn, version[:]); err != nil {
		return
	}
	if _, err := conn.Write([]byte{1, f.security}); err != nil {
		return
	}
	var chosen [1]byte
	if _, err := io.ReadFull(conn, chosen[:]); err != nil {
		return
	}
	binary.Write(conn, binary.BigEndian, uint32(0))

	var shared [1]byte
	if _, err := io.ReadFull(conn, shared[:]); err != nil {
		return
	}

	name := "fake desktop"
	init := []any{
		f.width, f.height,
		uint8(32), uint8(24), uint8(0), uint8(1), // bpp, depth, big-endian, true-colour
		uint16(255), uint16(255), uint16(255),
		uint8(16), uint8(8), uint8(0),
		[3]byte{},
		uint32(len(name)),
		[]byte(name),
	}
	for _, v := range init {
		if err := binary.Write(conn, binary.BigEndian, v); err != nil {
			return
		}
	}

	for {
		var msgType [1]byte
		if _, err := io.ReadFull(conn, msgType[:]); err != nil {
			return
		}
		switch msgType[0] {
		case 2: // SetEncodings
			var hdr [3]byte
			if _, err := io.ReadFull(conn, hdr[:]); err != nil {
				return
			}
			n := binary.BigEndian.Uint16(hdr[1:])
			if _, err := io.CopyN(io.Discard, conn, int64(n)*4); err != nil {
				return
			}
		case 3: // FramebufferUpdateRequest
			var req [9]byte
			if _, err := io.ReadFull(conn, req[:]); err != nil {
				return
			}
			x := binary.BigEndian.Uint16(req[1:])
			y := binary.BigEndian.Uint16(req[3:])
			w := binary.BigEndian.Uint16(req[5:])
			h := binary.BigEndian.Uint16(req[7:])
			if err := f.sendUpdate(conn, x, y, w, h); err != nil {
				return
			}
		case 4: // KeyEvent
			var ev [7]byte
			if _, err := io.ReadFull(conn, ev[:]); err != nil {
				return
			}
			f.events <- rfbEvent{kind: 4, down: ev[0] == 1, keysym: binary.BigEndian.Uint32(ev[3:])}
		case 5: // PointerEvent
			var ev [5]byte
			if _, err := io.ReadFull(conn, ev[:]); err != nil {
				return
			}
			f.events <- rfbEvent{
				kind: 5,
				mask: ev[0],
				x:    binary.BigEndian.Uint16(ev[1:]),
				y:    binary.BigEndian.Uint16(ev[3:]),
			}
		default:
			return
		}
	}
}

func (f *fakeRFB) sendUpdate(w io.Writer, x, y, width, height uint16) error {
	buf := []byte{0, 0}
	buf = binary.BigEndian.AppendUint16(buf, 1)
	buf = binary.BigEndian.AppendUint16(buf, x)
	buf = binary.BigEndian.AppendUint16(buf, y)
	buf = binary.BigEndian.AppendUint16(buf, width)
	buf = binary.BigEndian.AppendUint16(buf, height)
	buf = binary.BigEndian.AppendUint32(buf, 0) // raw
	for py := y; py < y+height; py++ {
		for px := x; px < x+width; px++ {
			pixel := uint32(px*50)<<16 | uint32(py*60)<<8 | 7
			buf = binary.LittleEndian.AppendUint32(buf, pixel)
		}
	}
	_, err := w.Write(buf)
	return err
}

func (f *fakeRFB) nextEvent(t *testing.T) rfbEvent {
	t.Helper()
	select {
	case ev := <-f.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client event")
		return rfbEvent{}
	}
}

func connectFake(t *testing.T, f *fakeRFB) Session {
	t.Helper()
	s, err := NewVNCDialer(discardLogger()).Connect(context.Background(), f.config())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestVNCSessionResolution(t *testing.T) {
	f := startFakeRFB(t, 4, 3, 1)
	s := connectFake(t, f)

	w, h := s.Resolution()
	if w != 4 || h != 3 {
		t.Errorf("Resolution = %dx%d, want 4x3", w, h)
	}
}

func TestVNCSessionCaptureWholeScreen(t *testing.T) {
	f := startFakeRFB(t, 4, 3, 1)
	s := connectFake(t, f)

	img, err := s.Capture(context.Background(), image.Rectangle{})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 3 {
		t.Fatalf("bounds = %v, want 4x3", img.Bounds())
	}
	got := img.RGBAAt(2, 1)
	if got.R != 100 || got.G != 60 || got.B != 7 || got.A != 255 {
		t.Errorf("pixel(2,1) = %+v, want {100 60 7 255}", got)
	}
}

func TestVNCSessionCaptureRectangle(t *testing.T) {
	f := startFakeRFB(t, 4, 3, 1)
	s := connectFake(t, f)

	img, err := s.Capture(context.Background(), image.Rect(1, 1, 3, 3))
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if img.Bounds().Dx() != 2 || img.Bounds().Dy() != 2 {
		t.Fatalf("bounds = %v, want 2x2", img.Bounds())
	}
	got := img.RGBAAt(0, 0)
	if got.R != 50 || got.G != 60 {
		t.Errorf("pixel(0,0) = %+v, want source pixel (1,1)", got)
	}
}

func TestVNCSessionCaptureOutOfBounds(t *testing.T) {
	f := startFakeRFB(t, 4, 3, 1)
	s := connectFake(t, f)

	_, err := s.Capture(context.Background(), image.Rect(2, 2, 8, 8))
	if !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Capture error = %v, want ErrOutOfBounds", err)
	}
}

func TestVNCSessionKeyEvents(t *testing.T) {
	f := startFakeRFB(t, 4, 3, 1)
	s := connectFake(t, f)
	ctx := context.Background()

	if err := s.KeyDown(ctx, "Control_L"); err != nil {
		t.Fatalf("KeyDown: %v", err)
	}
	if err := s.KeyUp(ctx, "Control_L"); err != nil {
		t.Fatalf("KeyUp: %v", err)
	}

	down := f.nextEvent(t)
	if down.kind != 4 || !down.down || down.keysym != 0xffe3 {
		t.Errorf("first event = %+v, want Control_L down", down)
	}
	up := f.nextEvent(t)
	if up.kind != 4 || up.down || up.keysym != 0xffe3 {
		t.Errorf("second event = %+v, want Control_L up", up)
	}

	if err := s.KeyDown(ctx, "NoSuchKey"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("KeyDown(NoSuchKey) = %v, want ErrUnknownKey", err)
	}
}

func TestVNCSessionType(t *testing.T) {
	f := startFakeRFB(t, 4, 3, 1)
	s := connectFake(t, f)

	if err := s.Type(context.Background(), "a\n"); err != nil {
		t.Fatalf("Type: %v", err)
	}

	want := []struct {
		sym  uint32
		down bool
	}{{'a', true}, {'a', false}, {0xff0d, true}, {0xff0d, false}}
	for i, w := range want {
		ev := f.nextEvent(t)
		if ev.keysym != w.sym || ev.down != w.down {
			t.Errorf("event %d = %+v, want keysym %#x down=%v", i, ev, w.sym, w.down)
		}
	}
}

func TestVNCSessionPointer(t *testing.T) {
	f := startFakeRFB(t, 4, 3, 1)
	s := connectFake(t, f)
	ctx := context.Background()

	if err := s.MoveMouse(ctx, 2, 2); err != nil {
		t.Fatalf("MoveMouse: %v", err)
	}
	if err := s.ButtonDown(ctx, ButtonScrollUp); err != nil {
		t.Fatalf("ButtonDown: %v", err)
	}
	if err := s.ButtonUp(ctx, ButtonScrollUp); err != nil {
		t.Fatalf("ButtonUp: %v", err)
	}

	move := f.nextEvent(t)
	if move.mask != 0 || move.x != 2 || move.y != 2 {
		t.Errorf("move = %+v, want mask 0 at (2,2)", move)
	}
	down := f.nextEvent(t)
	if down.mask != 1<<3 || down.x != 2 || down.y != 2 {
		t.Errorf("down = %+v, want mask button4 at (2,2)", down)
	}
	up := f.nextEvent(t)
	if up.mask != 0 {
		t.Errorf("up mask = %d, want 0", up.mask)
	}

	if err := s.MoveMouse(ctx, 4, 0); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("MoveMouse(4,0) = %v, want ErrOutOfBounds", err)
	}
	if err := s.ButtonDown(ctx, Button(7)); !errors.Is(err, ErrInvalidButton) {
		t.Errorf("ButtonDown(7) = %v, want ErrInvalidButton", err)
	}
}

func TestVNCSessionClosed(t *testing.T) {
	f := startFakeRFB(t, 4, 3, 1)
	s := connectFake(t, f)

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := s.Capture(context.Background(), image.Rectangle{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Capture after Close = %v, want ErrClosed", err)
	}
	if err := s.KeyDown(context.Background(), "a"); !errors.Is(err, ErrClosed) {
		t.Errorf("KeyDown after Close = %v, want ErrClosed", err)
	}
}

func TestVNCDialerAuthMismatch(t *testing.T) {
	// Server only offers VNC password authentication.
	f := startFakeRFB(t, 4, 3, 2)

	_, err := NewVNCDialer(discardLogger()).Connect(context.Background(), f.config())
	if !errors.Is(err, ErrAuth) {
		t.Errorf("Connect error = %v, want ErrAuth", err)
	}
}

func TestVNCDialerConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	_, err = NewVNCDialer(discardLogger()).Connect(context.Background(),
		Config{Host: "127.0.0.1", Port: addr.Port, Timeout: time.Second})
	if !errors.Is(err, ErrConnection) {
		t.Errorf("Connect error = %v, want ErrConnection", err)
	}
}

func TestVNCDialerHandshakeTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		// Never speak.
		defer conn.Close()
		time.Sleep(2 * time.Second)
	}()

	addr := ln.Addr().(*net.TCPAddr)
	start := time.Now()
	_, err = NewVNCDialer(discardLogger()).Connect(context.Background(),
		Config{Host: "127.0.0.1", Port: addr.Port, Timeout: 100 * time.Millisecond})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Connect error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Connect took %v, want about 100ms", elapsed)
	}
}

func TestScaleChannel(t *testing.T) {
	tests := []struct {
		v, max uint16
		want   uint8
	}{
		{0, 255, 0},
		{255, 255, 255},
		{31, 31, 255},
		{15, 31, 123},
		{0x8000, 0, 0x80},
	}
	for _, tt := range tests {
		if got := scaleChannel(tt.v, tt.max); got != tt.want {
			t.Errorf("scaleChannel(%d, %d) = %d, want %d", tt.v, tt.max, got, tt.want)
		}
	}
}
