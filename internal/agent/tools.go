// Package agent runs a language-model agent whose only tools are the
// Atlassian catalog.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	sdktool "github.com/cexll/agentsdk-go/pkg/tool"

	"github.com/stellarlinkco/atlastools/internal/catalog"
	"github.com/stellarlinkco/atlastools/internal/tool"
)

// catalogTool presents one catalog entry as an agentsdk-go tool.
type catalogTool struct {
	cat    *catalog.Catalog
	desc   tool.Descriptor
	schema *sdktool.JSONSchema
}

// Tools adapts every catalog entry. Schemas are converted up front so a bad
// schema is reported before the runtime starts.
func Tools(cat *catalog.Catalog) ([]sdktool.Tool, error) {
	ds := cat.Registry().Discover("")
	out := make([]sdktool.Tool, 0, len(ds))
	for _, d := range ds {
		schema, err := convertSchema(d)
		if err != nil {
			return nil, err
		}
		out = append(out, &catalogTool{cat: cat, desc: d, schema: schema})
	}
	return out, nil
}

func (t *catalogTool) Name() string        { return t.desc.Name() }
func (t *catalogTool) Description() string { return t.desc.Description() }

func (t *catalogTool) Schema() *sdktool.JSONSchema { return t.schema }

// Execute never returns an error: every failure is already part of the
// envelope, and the model reads the envelope to decide what to do next.
func (t *catalogTool) Execute(ctx context.Context, params map[string]interface{}) (*sdktool.ToolResult, error) {
	exec := t.cat.ExecuteTool(ctx, t.desc.Name(), params)
	out, err := json.Marshal(exec)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", t.desc.Name(), err)
	}
	return &sdktool.ToolResult{
		Success: exec.Succeeded(),
		Output:  string(out),
		Data:    exec,
	}, nil
}

func convertSchema(d tool.Descriptor) (*sdktool.JSONSchema, error) {
	m, err := tool.SchemaMap(d.InputSchema())
	if err != nil {
		return nil, fmt.Errorf("convert %s schema: %w", d.Name(), err)
	}
	props, _ := m["properties"].(map[string]any)
	if props == nil {
		props = map[string]any{}
	}
	var required []string
	if rs, ok := m["required"].([]any); ok {
		for _, r := range rs {
			if s, ok := r.(string); ok {
				required = append(required, s)
			}
		}
	}
	return &sdktool.JSONSchema{Type: "object", Properties: props, Required: required}, nil
}
