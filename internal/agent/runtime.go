package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/api"
	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/rs/zerolog"

	"github.com/stellarlinkco/atlastools/internal/catalog"
	"github.com/stellarlinkco/atlastools/internal/config"
	"github.com/stellarlinkco/atlastools/internal/skills"
)

// Runtime is the slice of the agentsdk-go runtime the CLI needs; tests
// substitute their own.
type Runtime interface {
	Run(ctx context.Context, req api.Request) (*api.Response, error)
	Close()
}

type runtimeWrapper struct {
	rt *api.Runtime
}

func (r *runtimeWrapper) Run(ctx context.Context, req api.Request) (*api.Response, error) {
	return r.rt.Run(ctx, req)
}

func (r *runtimeWrapper) Close() {
	_ = r.rt.Close()
}

// RuntimeFactory creates a Runtime bound to a catalog.
type RuntimeFactory func(cfg *config.Config, cat *catalog.Catalog, log zerolog.Logger) (Runtime, error)

// ErrNoAPIKey is returned when no model provider key is configured.
var ErrNoAPIKey = errors.New("API key not set. Run 'atlastools onboard' or set ATLASTOOLS_API_KEY / ANTHROPIC_API_KEY")

// DefaultRuntimeFactory builds an agentsdk-go runtime whose tool set is
// exactly the catalog. Built-in shell and file tools are not registered.
func DefaultRuntimeFactory(cfg *config.Config, cat *catalog.Catalog, log zerolog.Logger) (Runtime, error) {
	if cfg.Provider.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	tools, err := Tools(cat)
	if err != nil {
		return nil, err
	}
	skillRegs, err := skills.LoadSkills(filepath.Join(cfg.Agent.Workspace, "skills"), log)
	if err != nil {
		return nil, fmt.Errorf("load skills: %w", err)
	}

	var provider api.ModelFactory
	switch cfg.Provider.Type {
	case "openai":
		provider = &model.OpenAIProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: cfg.Agent.Model,
			MaxTokens: cfg.Agent.MaxTokens,
		}
	default:
		provider = &model.AnthropicProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: cfg.Agent.Model,
			MaxTokens: cfg.Agent.MaxTokens,
		}
	}

	rt, err := api.New(context.Background(), api.Options{
		ProjectRoot:   cfg.Agent.Workspace,
		ModelFactory:  provider,
		SystemPrompt:  SystemPrompt(cfg, cat),
		MaxIterations: cfg.Agent.MaxIterations,
		Tools:         tools,
		Skills:        skillRegs,
	})
	if err != nil {
		return nil, fmt.Errorf("create runtime: %w", err)
	}
	log.Debug().Str("component", "agent").Int("tools", len(tools)).Int("skills", len(skillRegs)).Msg("runtime ready")
	return &runtimeWrapper{rt: rt}, nil
}

// SystemPrompt combines the workspace AGENTS.md, if any, with a summary of
// the available tool categories.
func SystemPrompt(cfg *config.Config, cat *catalog.Catalog) string {
	var sb strings.Builder

	if data, err := os.ReadFile(filepath.Join(cfg.Agent.Workspace, "AGENTS.md")); err == nil {
		sb.Write(data)
		sb.WriteString("\n\n")
	} else {
		sb.WriteString(DefaultPrompt)
		sb.WriteString("\n")
	}

	sb.WriteString("## Available tools\n")
	for _, category := range cat.Categories() {
		fmt.Fprintf(&sb, "\n### %s\n", category)
		for _, s := range cat.ListTools(category) {
			fmt.Fprintf(&sb, "- %s: %s\n", s.Name, s.Description)
		}
	}
	return sb.String()
}

// DefaultPrompt is used when the workspace has no AGENTS.md.
const DefaultPrompt = `# atlastools agent

You work with Jira and Confluence through the tools listed below.
Every tool returns a JSON envelope. When execution_success is false the call
itself was rejected (unknown tool, bad input, missing credentials); when
tool_result.success is false the remote operation failed and tool_result.error
says why.
`
