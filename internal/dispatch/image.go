package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/seantiz/vncmcp/internal/managed"
)

// encodePNG runs on the worker pool; compression is CPU bound and cannot be
// interrupted.
var encodePNG = managed.Async(managed.NewCall("encode_png", func(img *image.RGBA) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}))

func (s *Server) screenshot(ctx context.Context, r image.Rectangle) (*mcp.CallToolResult, error) {
	img, err := s.session.Capture(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	data, err := encodePNG.Run(ctx, img)
	if err != nil {
		return nil, err
	}
	screenshotBytes.Observe(float64(len(data)))
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.ImageContent{Data: data, MIMEType: "image/png"}},
	}, nil
}
