package capture

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pagesnap/horosafe"
	"github.com/hazyhaar/pagesnap/kit"
)

// MCPToolName is the name of the screenshot tool.
const MCPToolName = "pagesnap_screenshot"

var screenshotTool = &mcp.Tool{
	Name:        MCPToolName,
	Description: "Capture a PNG screenshot of a web page viewport at 2x device scale. Returns the image and a JSON metadata block.",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":    map[string]any{"type": "string", "description": "http or https URL to capture"},
			"width":  map[string]any{"type": "integer", "description": "Viewport width in CSS pixels (default 1280)", "minimum": 1, "maximum": MaxWidth},
			"height": map[string]any{"type": "integer", "description": "Viewport height in CSS pixels (default 720)", "minimum": 1, "maximum": MaxHeight},
		},
		"required": []string{"url"},
	},
}

// RegisterMCP registers the screenshot tool on srv. Requests go through
// the same validation as the HTTP API.
func (s *Service) RegisterMCP(srv *mcp.Server, allowPrivate bool, resolver horosafe.Resolver) {
	ep := kit.Chain(s.publicErrors, Validate(allowPrivate, resolver))(s.Endpoint())
	kit.RegisterMCPTool(srv, screenshotTool, ep, decodeScreenshotArgs)
}

// publicErrors logs failures and hands the tool caller PublicMessage only.
func (s *Service) publicErrors(next kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		resp, err := next(ctx, req)
		if err != nil && StatusCode(err) >= 500 {
			s.logger.Error("capture: mcp call failed", "error", err)
			return nil, errors.New(PublicMessage(err))
		}
		return resp, err
	}
}

func decodeScreenshotArgs(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r Request
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
	}
	if r.URL == "" {
		return nil, errors.New("url is required")
	}
	return &kit.MCPDecodeResult{Request: r}, nil
}

// MCPContent renders the result as an image block followed by metadata.
func (r *Result) MCPContent() []mcp.Content {
	meta, _ := json.Marshal(map[string]any{
		"id":          r.ID,
		"url":         r.URL,
		"width":       r.Width,
		"height":      r.Height,
		"scale":       r.Scale,
		"bytes":       len(r.PNG),
		"duration_ms": r.Duration.Milliseconds(),
	})
	return []mcp.Content{
		&mcp.ImageContent{Data: r.PNG, MIMEType: "image/png"},
		&mcp.TextContent{Text: string(meta)},
	}
}
