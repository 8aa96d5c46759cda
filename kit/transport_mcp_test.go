package kit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type echoReq struct {
	Msg string `json:"msg"`
}

type imageResp struct{ data []byte }

func (r imageResp) MCPContent() []mcp.Content {
	return []mcp.Content{&mcp.ImageContent{Data: r.data, MIMEType: "image/png"}}
}

func mcpSession(t *testing.T, register func(*mcp.Server)) *mcp.ClientSession {
	t.Helper()
	impl := &mcp.Implementation{Name: "kit-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)
	register(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	session, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func decodeEcho(req *mcp.CallToolRequest) (*MCPDecodeResult, error) {
	var r echoReq
	if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
		return nil, err
	}
	if r.Msg == "" {
		return nil, errors.New("msg is required")
	}
	return &MCPDecodeResult{Request: r}, nil
}

var echoTool = &mcp.Tool{
	Name:        "echo",
	Description: "echo",
	InputSchema: map[string]any{"type": "object"},
}

func TestRegisterMCPTool_JSON(t *testing.T) {
	var transport string
	ep := func(ctx context.Context, req any) (any, error) {
		transport = GetTransport(ctx)
		return map[string]string{"echo": req.(echoReq).Msg}, nil
	}
	session := mcpSession(t, func(s *mcp.Server) { RegisterMCPTool(s, echoTool, ep, decodeEcho) })

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"msg": "hi"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %+v", res.Content)
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", res.Content[0])
	}
	if tc.Text != `{"echo":"hi"}` {
		t.Fatalf("text: got %q", tc.Text)
	}
	if transport != "mcp" {
		t.Fatalf("transport: got %q, want mcp", transport)
	}
}

func TestRegisterMCPTool_Contenter(t *testing.T) {
	ep := func(_ context.Context, _ any) (any, error) {
		return imageResp{data: []byte{0x89, 'P', 'N', 'G'}}, nil
	}
	session := mcpSession(t, func(s *mcp.Server) { RegisterMCPTool(s, echoTool, ep, decodeEcho) })

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"msg": "img"},
	})
	if err != nil {
		t.Fatal(err)
	}
	img, ok := res.Content[0].(*mcp.ImageContent)
	if !ok {
		t.Fatalf("expected ImageContent, got %T", res.Content[0])
	}
	if img.MIMEType != "image/png" || len(img.Data) != 4 {
		t.Fatalf("image: %s %d bytes", img.MIMEType, len(img.Data))
	}
}

func TestRegisterMCPTool_Errors(t *testing.T) {
	ep := func(_ context.Context, _ any) (any, error) {
		return nil, errors.New("boom")
	}
	session := mcpSession(t, func(s *mcp.Server) { RegisterMCPTool(s, echoTool, ep, decodeEcho) })

	for _, args := range []map[string]any{{}, {"msg": "x"}} {
		res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: "echo", Arguments: args})
		if err != nil {
			t.Fatal(err)
		}
		if !res.IsError {
			t.Fatalf("args %v: expected tool error", args)
		}
	}
}
