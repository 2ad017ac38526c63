// Package remote serves a capability through a tool on an MCP server, so a
// specialist can live in another process without the orchestrator knowing
// the transport.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/calebrin/tutorcore/internal/core"
	"github.com/calebrin/tutorcore/pkg/log"
	"github.com/mark3labs/mcp-go/client"
	mcpproto "github.com/mark3labs/mcp-go/mcp"
)

// ServerConfig describes how to reach the MCP server. Either URL (streamable
// HTTP) or Command (stdio) must be set.
type ServerConfig struct {
	URL     string
	Command string
	Args    []string
	Env     map[string]string
	Headers map[string]string
}

// Provider exposes one MCP tool as a CapabilityProvider.
type Provider struct {
	name core.Capability
	tool string
	cli  *client.Client
}

func New(ctx context.Context, name core.Capability, tool string, cfg ServerConfig) (*Provider, error) {
	var cli *client.Client
	var err error
	switch {
	case cfg.Command != "":
		cli, err = stdioClient(ctx, cfg)
	case cfg.URL != "":
		cli, err = httpClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("remote capability %s: no URL or command configured", name)
	}
	if err != nil {
		return nil, err
	}

	log.FromCtx(ctx).Info().
		Str("capability", string(name)).
		Str("tool", tool).
		Msg("remote capability provider connected")

	return &Provider{name: name, tool: tool, cli: cli}, nil
}

func (p *Provider) Name() core.Capability {
	return p.name
}

func (p *Provider) Invoke(ctx context.Context, req core.CapabilityRequest) (core.CapabilityResponse, error) {
	call := mcpproto.CallToolRequest{}
	call.Params.Name = p.tool
	call.Params.Arguments = map[string]any{
		"query":      req.Query,
		"subject":    string(req.Subject),
		"difficulty": req.Difficulty,
		"context":    req.Context,
		"evidence":   req.Evidence,
	}

	res, err := p.cli.CallTool(ctx, call)
	if err != nil {
		return core.CapabilityResponse{}, fmt.Errorf("call tool %s: %w", p.tool, err)
	}
	if res.IsError {
		return core.CapabilityResponse{}, fmt.Errorf("tool %s reported an error", p.tool)
	}

	var output strings.Builder
	for _, content := range res.Content {
		if text, ok := content.(mcpproto.TextContent); ok {
			output.WriteString(text.Text)
		} else if textPtr, ok := content.(*mcpproto.TextContent); ok {
			output.WriteString(textPtr.Text)
		}
	}

	return decodeResult(output.String())
}

// decodeResult accepts either a structured CapabilityResponse JSON document
// or plain text from simpler tools.
func decodeResult(raw string) (core.CapabilityResponse, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return core.CapabilityResponse{}, fmt.Errorf("tool returned no text content")
	}

	if strings.HasPrefix(raw, "{") {
		var resp core.CapabilityResponse
		if err := json.Unmarshal([]byte(raw), &resp); err == nil && resp.Text != "" {
			return resp, nil
		}
	}

	return core.CapabilityResponse{Text: raw}, nil
}

func (p *Provider) Close() error {
	return p.cli.Close()
}
