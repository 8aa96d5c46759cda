package capture

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testMCPImpl = &mcp.Implementation{Name: "pagesnap-test", Version: "0.1.0"}

func mcpSession(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	svc.RegisterMCP(srv, false, publicResolver{})

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	session, err := mcp.NewClient(testMCPImpl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callScreenshot(t *testing.T, session *mcp.ClientSession, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      MCPToolName,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	return res
}

func TestMCP_Screenshot(t *testing.T) {
	session := mcpSession(t, newTestService(t, nil, &fakeLauncher{}))

	res := callScreenshot(t, session, map[string]any{"url": "https://example.com", "width": 640, "height": 480})
	if res.IsError {
		t.Fatalf("tool error: %+v", res.Content)
	}
	if len(res.Content) != 2 {
		t.Fatalf("content blocks: %d", len(res.Content))
	}
	img, ok := res.Content[0].(*mcp.ImageContent)
	if !ok {
		t.Fatalf("block 0: %T, want ImageContent", res.Content[0])
	}
	if img.MIMEType != "image/png" {
		t.Errorf("mime: %q", img.MIMEType)
	}
	if w, h := pngSize(t, img.Data); w != 1280 || h != 960 {
		t.Fatalf("png: %dx%d", w, h)
	}

	tc, ok := res.Content[1].(*mcp.TextContent)
	if !ok {
		t.Fatalf("block 1: %T, want TextContent", res.Content[1])
	}
	var meta struct {
		ID    string  `json:"id"`
		Width int     `json:"width"`
		Scale float64 `json:"scale"`
		Bytes int     `json:"bytes"`
	}
	if err := json.Unmarshal([]byte(tc.Text), &meta); err != nil {
		t.Fatal(err)
	}
	if meta.Width != 640 || meta.Scale != 2 || meta.Bytes != len(img.Data) || meta.ID == "" {
		t.Fatalf("meta: %+v", meta)
	}
}

func TestMCP_Errors(t *testing.T) {
	session := mcpSession(t, newTestService(t, nil, &fakeLauncher{}))

	for _, args := range []map[string]any{
		{},
		{"url": "http://10.0.0.8/"},
		{"url": "https://example.com", "width": 99999},
	} {
		if res := callScreenshot(t, session, args); !res.IsError {
			t.Errorf("args %v: expected tool error", args)
		}
	}
}

func TestMCP_ServerErrorsHideDetail(t *testing.T) {
	// WHAT: Tool errors for server-side failures name the outcome, not the
	// launcher's error text.
	l := &fakeLauncher{err: errors.New("fork/exec /opt/internal/chrome: exec format error")}
	session := mcpSession(t, newTestService(t, nil, l))

	res := callScreenshot(t, session, map[string]any{"url": "https://example.com"})
	if !res.IsError {
		t.Fatal("expected tool error")
	}
	for _, c := range res.Content {
		tc, ok := c.(*mcp.TextContent)
		if !ok {
			continue
		}
		if strings.Contains(tc.Text, "/opt/internal") {
			t.Fatalf("tool error leaks server detail: %q", tc.Text)
		}
		if !strings.Contains(tc.Text, "capture failed: launch") {
			t.Errorf("tool error: %q", tc.Text)
		}
	}
}
