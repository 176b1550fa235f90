package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/agentrt/runtime/pkg/types"
)

// MCPServerConfig names one external MCP server the runtime connects to at
// startup (spec.md §4.4's local-handler story, supplemented per SPEC_FULL.md
// §4: a second local-tool provenance besides hand-written Go tools).
type MCPServerConfig struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// mcpServerConn is one live connection and its resolved tool set.
type mcpServerConn struct {
	name   string
	client *client.Client
	tools  []mcp.Tool
}

// MCPClient manages a set of stdio MCP server connections and exposes their
// tools to a Dispatcher as local handlers, prefixed by server name so two
// servers can expose a tool with the same short name without colliding.
type MCPClient struct {
	mu      sync.RWMutex
	servers map[string]*mcpServerConn
	log     zerolog.Logger
}

// NewMCPClient constructs an empty MCPClient.
func NewMCPClient(log zerolog.Logger) *MCPClient {
	return &MCPClient{servers: make(map[string]*mcpServerConn), log: log}
}

// Connect starts cfg's subprocess, performs the MCP initialize handshake,
// and lists its tools. The connection is kept open for the lifetime of the
// MCPClient; call Close to tear every connection down.
func (c *MCPClient) Connect(ctx context.Context, cfg MCPServerConfig) error {
	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}

	mcpClient, err := client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	if err != nil {
		return fmt.Errorf("mcp: create client %q: %w", cfg.Name, err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("mcp: start %q: %w", cfg.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "agentrt-runtime", Version: "1.0.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("mcp: initialize %q: %w", cfg.Name, err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("mcp: list tools %q: %w", cfg.Name, err)
	}

	c.mu.Lock()
	c.servers[cfg.Name] = &mcpServerConn{name: cfg.Name, client: mcpClient, tools: listResp.Tools}
	c.mu.Unlock()

	c.log.Info().Str("server", cfg.Name).Int("tools", len(listResp.Tools)).Msg("mcp server connected")
	return nil
}

// Close disconnects every connected server.
func (c *MCPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for _, srv := range c.servers {
		if err := srv.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.servers = make(map[string]*mcpServerConn)
	return firstErr
}

// RegisterTools declares every connected server's tools as local tools on
// dispatch, under the name "<server>_<tool>". agentDefs is not used: the
// Declaration carries no AllowedAgents restriction of its own, so access
// falls back to whatever the caller configured dispatch with for that agent
// roster.
func (c *MCPClient) RegisterTools(dispatch *Dispatcher, agentDefs map[string]types.AgentDefinition) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, srv := range c.servers {
		srv := srv
		for _, t := range srv.tools {
			schema, err := json.Marshal(t.InputSchema)
			if err != nil {
				return fmt.Errorf("mcp: marshal schema for %s/%s: %w", srv.name, t.Name, err)
			}
			decl := Declaration{
				Name:        srv.name + "_" + t.Name,
				Description: t.Description,
				Schema:      schema,
			}
			toolName := t.Name
			handler := func(ctx context.Context, call CallContext, arguments json.RawMessage) (*Result, error) {
				return callMCPTool(ctx, srv, toolName, arguments)
			}
			if err := dispatch.RegisterLocal(decl, handler); err != nil {
				return fmt.Errorf("mcp: register %s: %w", decl.Name, err)
			}
		}
	}
	return nil
}

// callMCPTool invokes one tool on an already-connected server and flattens
// its response into a dispatcher Result.
func callMCPTool(ctx context.Context, srv *mcpServerConn, toolName string, arguments json.RawMessage) (*Result, error) {
	var args map[string]any
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &args); err != nil {
			return nil, fmt.Errorf("mcp: decode arguments for %s: %w", toolName, err)
		}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = args

	resp, err := srv.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcp: call %s/%s: %w", srv.name, toolName, err)
	}

	var texts []string
	for _, content := range resp.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	output := ""
	if len(texts) > 0 {
		output = texts[0]
		for _, extra := range texts[1:] {
			output += "\n" + extra
		}
	}

	if resp.IsError {
		return &Result{Title: srv.name + "_" + toolName, Output: output, Metadata: map[string]any{"mcpError": true}}, nil
	}
	return &Result{Title: srv.name + "_" + toolName, Output: output}, nil
}
