package inspect

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/renderwatch/kit"
)

// RegisterMCP registers the inspection tools on an MCP server.
func (in *Inspector) RegisterMCP(srv *mcp.Server) {
	in.registerSessionsTool(srv)
	in.registerRendersTool(srv)
	in.registerFindTextTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- sessions ---

type sessionsReq struct{}

func (in *Inspector) registerSessionsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "renderwatch_sessions",
		Description: "List recorded profiling sessions, most recent first, with render and error counts.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return in.Sessions(ctx)
	}
	kit.RegisterMCPTool(srv, tool, in.wrap("renderwatch_sessions", endpoint), kit.DecodeArgs[sessionsReq]())
}

// --- renders ---

type rendersReq struct {
	Session string `json:"session"`
	Count   int    `json:"count"`
}

func (in *Inspector) registerRendersTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "renderwatch_renders",
		Description: "List the renders of a session, or return one render with its markup when count is given.",
		InputSchema: inputSchema(map[string]any{
			"session": map[string]any{"type": "string", "description": "Session name"},
			"count":   map[string]any{"type": "integer", "description": "1-based render count (optional)"},
		}, []string{"session"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*rendersReq)
		if err := requireSession(r.Session); err != nil {
			return nil, err
		}
		if r.Count > 0 {
			return in.Render(ctx, r.Session, r.Count)
		}
		return in.Renders(ctx, r.Session)
	}
	kit.RegisterMCPTool(srv, tool, in.wrap("renderwatch_renders", endpoint), kit.DecodeArgs[rendersReq]())
}

// --- find text ---

type findTextReq struct {
	Session string `json:"session"`
	Text    string `json:"text"`
	Count   int    `json:"count"`
}

func (in *Inspector) registerFindTextTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "renderwatch_find_text",
		Description: "Find elements whose own text equals the given text in the captured markup of a session's renders.",
		InputSchema: inputSchema(map[string]any{
			"session": map[string]any{"type": "string", "description": "Session name"},
			"text":    map[string]any{"type": "string", "description": "Exact text, whitespace-normalised"},
			"count":   map[string]any{"type": "integer", "description": "Restrict to one render (optional)"},
		}, []string{"session", "text"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*findTextReq)
		if err := requireSession(r.Session); err != nil {
			return nil, err
		}
		matches, err := in.FindText(ctx, r.Session, r.Text, r.Count)
		if err != nil {
			return nil, err
		}
		if matches == nil {
			matches = []TextMatch{}
		}
		return matches, nil
	}
	kit.RegisterMCPTool(srv, tool, in.wrap("renderwatch_find_text", endpoint), kit.DecodeArgs[findTextReq]())
}

// wrap applies the tool middleware: a request ID is assigned first so the
// logging middleware can report it.
func (in *Inspector) wrap(name string, ep kit.Endpoint) kit.Endpoint {
	return kit.Chain(in.assignRequestID, kit.Logging(in.logger, name))(ep)
}

func (in *Inspector) assignRequestID(next kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		if kit.GetRequestID(ctx) == "" {
			ctx = kit.WithRequestID(ctx, in.ids())
		}
		return next(ctx, req)
	}
}
