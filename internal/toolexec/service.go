package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/convoke-ai/convoke/pkg/types"
)

// Transport selects the connection mechanism for a tool server.
type Transport string

const (
	// TransportStdio spawns a subprocess and communicates over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP communicates via the MCP Streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ServerConfig describes how to connect to a single tool server.
type ServerConfig struct {
	// Name is the unique, human-readable identifier for this server.
	Name string

	// Transport specifies the connection mechanism.
	Transport Transport

	// Command is the executable path and arguments used for stdio transport.
	// Example: "/usr/local/bin/mcp-mailer --config /etc/mailer.json"
	Command string

	// URL is the endpoint address used for streamable-http transport.
	URL string

	// Env holds additional environment variables injected into the server
	// process for stdio transport. May be nil.
	Env map[string]string
}

// toolEntry maps a catalogue tool to the server that provides it.
type toolEntry struct {
	def        types.ToolDefinition
	serverName string
}

// serverConn holds a live connection to a tool server.
type serverConn struct {
	session *mcpsdk.ClientSession
}

// Service is the MCP-backed implementation of [Executor].
//
// It manages connections to one or more tool servers, maintains a
// concurrent-safe in-memory tool catalogue, and routes execution requests to
// the owning server. The zero value is NOT usable; create instances with [NewService].
type Service struct {
	mu      sync.RWMutex
	tools   map[string]toolEntry  // key: tool name
	servers map[string]serverConn // key: server name

	// client is reused across all server connections; the official SDK
	// allows a single Client to manage multiple sessions concurrently.
	client *mcpsdk.Client
}

// Compile-time check: Service must implement Executor.
var _ Executor = (*Service)(nil)

// NewService creates and returns a ready-to-use Service with no servers
// registered.
func NewService() *Service {
	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "convoke-toolexec", Version: "1.0.0"},
		nil,
	)
	return &Service{
		tools:   make(map[string]toolEntry),
		servers: make(map[string]serverConn),
		client:  client,
	}
}

// RegisterServer connects to the tool server described by cfg and imports its
// tool catalogue. If a server with the same Name is already registered, the
// old connection is closed and replaced.
func (s *Service) RegisterServer(ctx context.Context, cfg ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("toolexec: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("toolexec: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	var transport mcpsdk.Transport

	switch cfg.Transport {
	case TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("toolexec: stdio server %q requires a non-empty Command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("toolexec: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	}

	session, err := s.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("toolexec: failed to connect to server %q: %w", cfg.Name, err)
	}

	var discovered []mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("toolexec: failed to list tools for server %q: %w", cfg.Name, err)
		}
		discovered = append(discovered, *tool)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.servers[cfg.Name]; ok {
		_ = old.session.Close()
		for name, t := range s.tools {
			if t.serverName == cfg.Name {
				delete(s.tools, name)
			}
		}
	}

	s.servers[cfg.Name] = serverConn{session: session}

	for _, t := range discovered {
		s.tools[t.Name] = toolEntry{
			def: types.ToolDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaToMap(t.InputSchema),
			},
			serverName: cfg.Name,
		}
	}

	return nil
}

// Tools implements [Executor]. The returned slice is a snapshot; callers may
// retain it for the duration of a request.
func (s *Service) Tools() []types.ToolDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	defs := make([]types.ToolDefinition, 0, len(s.tools))
	for _, e := range s.tools {
		defs = append(defs, e.def)
	}
	return defs
}

// Execute implements [Executor]. name must exactly match a catalogue entry;
// the caller (the [Invoker]) performs alias normalisation before dispatch.
func (s *Service) Execute(ctx context.Context, name, args string, auth Auth) (string, error) {
	s.mu.RLock()
	entry, ok := s.tools[name]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("toolexec: tool %q not found", name)
	}

	s.mu.RLock()
	conn, ok := s.servers[entry.serverName]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("toolexec: server %q not found for tool %q", entry.serverName, name)
	}

	var argsMap map[string]any
	if args != "" && args != "{}" {
		if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
			return "", fmt.Errorf("toolexec: invalid args JSON for tool %q: %w", name, err)
		}
	}

	// Forward the caller's authorization unchanged as request metadata.
	meta := mcpsdk.Meta{}
	if auth.AgentID != "" {
		meta["convoke/agentId"] = auth.AgentID
	}
	if auth.UserID != "" {
		meta["convoke/userId"] = auth.UserID
	}
	if auth.Token != "" {
		meta["convoke/authorization"] = auth.Token
	}

	callResult, err := conn.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Meta:      meta,
		Name:      name,
		Arguments: argsMap,
	})
	if err != nil {
		return "", fmt.Errorf("toolexec: call to tool %q failed: %w", name, err)
	}

	var sb strings.Builder
	for _, c := range callResult.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}

	if callResult.IsError {
		return sb.String(), fmt.Errorf("toolexec: tool %q reported an error: %s", name, sb.String())
	}
	return sb.String(), nil
}

// Close shuts down all server connections and clears the catalogue. After
// Close returns the Service must not be used again.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, conn := range s.servers {
		if err := conn.session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("toolexec: error closing server %q: %w", name, err)
		}
		delete(s.servers, name)
	}
	s.tools = make(map[string]toolEntry)
	return firstErr
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// splitCommand splits a command string into executable and arguments.
// e.g. "/bin/foo --bar baz" → ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
