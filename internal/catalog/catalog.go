// Package catalog is the public face of the tool layer: discovery,
// introspection, validation and execution of every Atlassian tool.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/rs/zerolog"

	"github.com/stellarlinkco/atlastools/internal/atlassian"
	"github.com/stellarlinkco/atlastools/internal/config"
	"github.com/stellarlinkco/atlastools/internal/confluence"
	"github.com/stellarlinkco/atlastools/internal/jira"
	"github.com/stellarlinkco/atlastools/internal/tool"
)

// Summary is the listing form of a tool.
type Summary struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// Info is the full description of a tool, schemas included.
type Info struct {
	Name         string             `json:"name"`
	Category     string             `json:"category"`
	Description  string             `json:"description"`
	InputSchema  *jsonschema.Schema `json:"input_schema"`
	OutputSchema *jsonschema.Schema `json:"output_schema"`
}

type Catalog struct {
	registry *tool.Registry
	executor *tool.Executor
}

// FromRegistry wraps an already populated registry.
func FromRegistry(reg *tool.Registry, log zerolog.Logger) *Catalog {
	return &Catalog{registry: reg, executor: tool.NewExecutor(reg, log)}
}

// New builds a catalog with the Jira and Confluence tools registered. Service
// clients are built on first use, so missing credentials only fail the
// tools that need them.
func New(cfg *config.Config, log zerolog.Logger, opts ...atlassian.Option) (*Catalog, error) {
	reg := tool.NewRegistry(log)
	if err := jira.Register(reg, jira.LazyProvider(cfg.Jira, log, opts...)); err != nil {
		return nil, fmt.Errorf("register jira tools: %w", err)
	}
	if err := confluence.Register(reg, confluence.LazyProvider(cfg.Confluence, log, opts...)); err != nil {
		return nil, fmt.Errorf("register confluence tools: %w", err)
	}
	return FromRegistry(reg, log), nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the process-wide catalog. The first call builds it from cfg
// and log; later calls return the same instance and ignore their arguments.
func Default(cfg *config.Config, log zerolog.Logger) (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = New(cfg, log)
	})
	return defaultCatalog, defaultErr
}

func (c *Catalog) Registry() *tool.Registry { return c.registry }

func (c *Catalog) Executor() *tool.Executor { return c.executor }

func (c *Catalog) ListTools(category string) []Summary {
	return summaries(c.registry.Discover(category))
}

func (c *Catalog) SearchTools(query string) []Summary {
	return summaries(c.registry.Search(query))
}

func (c *Catalog) Categories() []string { return c.registry.Categories() }

func (c *Catalog) GetToolInfo(name string) (Info, error) {
	d, err := c.registry.Metadata(name)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Name:         d.Name(),
		Category:     d.Category(),
		Description:  d.Description(),
		InputSchema:  d.InputSchema(),
		OutputSchema: d.OutputSchema(),
	}, nil
}

func (c *Catalog) ExecuteTool(ctx context.Context, name string, input map[string]any) tool.Execution {
	return c.executor.Execute(ctx, name, input)
}

func (c *Catalog) ValidateInput(name string, input map[string]any) error {
	return c.executor.ValidateInput(name, input)
}

func (c *Catalog) Loaded() []string { return c.registry.Loaded() }

func summaries(ds []tool.Descriptor) []Summary {
	out := make([]Summary, 0, len(ds))
	for _, d := range ds {
		out = append(out, Summary{Name: d.Name(), Category: d.Category(), Description: d.Description()})
	}
	return out
}
