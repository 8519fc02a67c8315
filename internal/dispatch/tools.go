package dispatch

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/seantiz/vncmcp/internal/remote"
)

const (
	coordinatesNote = "Coordinates use the session workspace resolution reported by get_screen_resolution."
	buttonsNote     = "Mouse buttons: 0 left, 1 middle, 2 right, 3 scroll up, 4 scroll down."
	keysNote        = "Key names follow X11 keysym names, e.g. Control_L, Shift_L, Alt_L, Super_L, " +
		"BackSpace, Delete, Escape, Return, space. Single lowercase letters and digits name themselves."
)

// holds selects optional keys and a mouse button to hold during an action.
type holds struct {
	keys   []string
	button *int
}

// RectangleArgs selects part of the screen.
type RectangleArgs struct {
	TopLeftX int `json:"top_left_x"`
	TopLeftY int `json:"top_left_y"`
	Width    int `json:"width"`
	Height   int `json:"height"`
}

// StrikeArgs are the arguments of strike_keys.
type StrikeArgs struct {
	Keys              []string `json:"keys" jsonschema:"keys pressed in order and released in reverse"`
	KeysToHold        []string `json:"keys_to_hold,omitempty" jsonschema:"keys held down for the duration of the action"`
	MouseButtonToHold *int     `json:"mouse_button_to_hold,omitempty" jsonschema:"mouse button held down for the duration of the action (0-4)"`
}

// WriteArgs are the arguments of write_string.
type WriteArgs struct {
	String            string   `json:"string" jsonschema:"text typed into the focused element"`
	KeysToHold        []string `json:"keys_to_hold,omitempty" jsonschema:"keys held down for the duration of the action"`
	MouseButtonToHold *int     `json:"mouse_button_to_hold,omitempty" jsonschema:"mouse button held down for the duration of the action (0-4)"`
}

// MoveArgs are the arguments of move_mouse.
type MoveArgs struct {
	StartX            int      `json:"start_x"`
	StartY            int      `json:"start_y"`
	EndX              int      `json:"end_x"`
	EndY              int      `json:"end_y"`
	KeysToHold        []string `json:"keys_to_hold,omitempty" jsonschema:"keys held down for the duration of the action"`
	MouseButtonToHold *int     `json:"mouse_button_to_hold,omitempty" jsonschema:"mouse button held down for the duration of the action (0-4)"`
}

// PointArgs are the arguments of move_mouse_to.
type PointArgs struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ClickArgs are the arguments of click_at_current_position.
type ClickArgs struct {
	MouseButton int      `json:"mouse_button" jsonschema:"mouse button to click (0-4)"`
	N           int      `json:"n" jsonschema:"number of clicks, or lines when scrolling"`
	KeysToHold  []string `json:"keys_to_hold,omitempty" jsonschema:"keys held down while clicking"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "get_screen_resolution",
		Description: "Returns the width and height of the session workspace as WIDTHxHEIGHT. " +
			"Use this resolution for every tool that takes a position.",
	}, instrument(s, "get_screen_resolution", s.resolution))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "get_whole_screen_image",
		Description: "Captures the entire session workspace as a PNG image. " +
			"Prefer get_rectangle_of_screen when only part of the screen matters.",
	}, instrument(s, "get_whole_screen_image", s.wholeScreen))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_rectangle_of_screen",
		Description: "Captures a rectangle of the session workspace as a PNG image. " + coordinatesNote,
	}, instrument(s, "get_rectangle_of_screen", s.rectangle))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "strike_keys",
		Description: "Strikes keys with no delay. Keys are released in reverse order, so the last key is struck " +
			"with all others held. Optionally holds extra keys and a mouse button. " + keysNote + " " + buttonsNote,
	}, instrument(s, "strike_keys", s.strikeKeys))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "write_string",
		Description: "Types a string into the session. Select a text field with the mouse first. " +
			"Optionally holds keys and a mouse button. " + buttonsNote,
	}, instrument(s, "write_string", s.writeString))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "move_mouse",
		Description: "Moves the mouse from (start_x, start_y) to (end_x, end_y), optionally holding keys " +
			"and a mouse button, e.g. to drag. " + coordinatesNote + " " + buttonsNote,
	}, instrument(s, "move_mouse", s.moveMouse))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "move_mouse_to",
		Description: "Moves the mouse to (x, y). Follow with click_at_current_position to click there. " +
			coordinatesNote,
	}, instrument(s, "move_mouse_to", s.moveMouseTo))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "click_at_current_position",
		Description: "Clicks a mouse button n times at the current position, optionally holding keys " +
			"(CTRL+click, SHIFT+scroll). Scroll buttons scroll n lines. " + buttonsNote,
	}, instrument(s, "click_at_current_position", s.click))
}

func (s *Server) resolution(_ context.Context, _ struct{}) (*mcp.CallToolResult, error) {
	w, h := s.session.Resolution()
	return text("%dx%d", w, h), nil
}

func (s *Server) wholeScreen(ctx context.Context, _ struct{}) (*mcp.CallToolResult, error) {
	return s.screenshot(ctx, image.Rectangle{})
}

func (s *Server) rectangle(ctx context.Context, in RectangleArgs) (*mcp.CallToolResult, error) {
	if in.Width <= 0 || in.Height <= 0 {
		return nil, fmt.Errorf("width and height must be positive, got %dx%d", in.Width, in.Height)
	}
	r := image.Rect(in.TopLeftX, in.TopLeftY, in.TopLeftX+in.Width, in.TopLeftY+in.Height)
	return s.screenshot(ctx, r)
}

func (s *Server) strikeKeys(ctx context.Context, in StrikeArgs) (*mcp.CallToolResult, error) {
	if len(in.Keys) == 0 {
		return nil, fmt.Errorf("no keys to strike")
	}
	h := holds{keys: in.KeysToHold, button: in.MouseButtonToHold}
	err := s.withHolds(ctx, h, func() error {
		return remote.Strike(ctx, s.session, in.Keys...)
	})
	if err != nil {
		return nil, err
	}
	return text("Successfully struck %s%s", strings.Join(in.Keys, ", "), h.suffix()), nil
}

func (s *Server) writeString(ctx context.Context, in WriteArgs) (*mcp.CallToolResult, error) {
	h := holds{keys: in.KeysToHold, button: in.MouseButtonToHold}
	err := s.withHolds(ctx, h, func() error {
		return s.session.Type(ctx, in.String)
	})
	if err != nil {
		return nil, err
	}
	return text("Successfully typed %s%s", in.String, h.suffix()), nil
}

func (s *Server) moveMouse(ctx context.Context, in MoveArgs) (*mcp.CallToolResult, error) {
	h := holds{keys: in.KeysToHold, button: in.MouseButtonToHold}
	err := s.withHolds(ctx, h, func() error {
		return remote.Drag(ctx, s.session, in.StartX, in.StartY, in.EndX, in.EndY)
	})
	if err != nil {
		return nil, err
	}
	return text("Successfully moved mouse from (%d, %d) to (%d, %d)%s",
		in.StartX, in.StartY, in.EndX, in.EndY, h.suffix()), nil
}

func (s *Server) moveMouseTo(ctx context.Context, in PointArgs) (*mcp.CallToolResult, error) {
	if err := s.session.MoveMouse(ctx, in.X, in.Y); err != nil {
		return nil, err
	}
	return text("Successfully moved mouse to (%d, %d)", in.X, in.Y), nil
}

func (s *Server) click(ctx context.Context, in ClickArgs) (*mcp.CallToolResult, error) {
	h := holds{keys: in.KeysToHold}
	err := s.withHolds(ctx, h, func() error {
		return remote.Click(ctx, s.session, remote.Button(in.MouseButton), in.N)
	})
	if err != nil {
		return nil, err
	}
	return text("Successfully clicked %d times at current position%s", in.N, h.suffix()), nil
}

// withHolds runs fn with the mouse button held outermost and keys inside it.
func (s *Server) withHolds(ctx context.Context, h holds, fn func() error) error {
	withKeys := fn
	if len(h.keys) > 0 {
		withKeys = func() error {
			return remote.WithKeysHeld(ctx, s.session, h.keys, fn)
		}
	}
	if h.button == nil {
		return withKeys()
	}
	return remote.WithButtonHeld(ctx, s.session, remote.Button(*h.button), withKeys)
}

func (h holds) suffix() string {
	keys := strings.Join(h.keys, ", ")
	switch {
	case h.button != nil && keys != "":
		return fmt.Sprintf(" while holding mouse button %d and keys %s", *h.button, keys)
	case h.button != nil:
		return fmt.Sprintf(" while holding mouse button %d", *h.button)
	case keys != "":
		return " while holding " + keys
	default:
		return ""
	}
}
