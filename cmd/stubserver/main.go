// stubserver runs the full runtime and MCP tool server against an in-memory
// desktop instead of a VNC server, for end-to-end and manual testing.
// Usage: go run ./cmd/stubserver --diag-addr :8080
package main

import (
	"os"

	"github.com/seantiz/vncmcp/internal/cli"
	"github.com/seantiz/vncmcp/internal/remote"
	"github.com/seantiz/vncmcp/internal/service"
)

const (
	stubWidth  = 1280
	stubHeight = 800
)

func main() {
	desktop := remote.NewStubSession(stubWidth, stubHeight)
	app := cli.App{
		Name:    "stubserver",
		Version: "stub",
		ServiceOptions: []service.Option{
			service.WithDialer(remote.StubDialer(desktop)),
		},
	}
	os.Exit(app.Execute())
}
