package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T) (*Executor, map[string]*countingFactory) {
	t.Helper()
	r, fakes := newTestRegistry(t)
	return NewExecutor(r, zerolog.Nop()), fakes
}

func TestExecuteUnknownTool(t *testing.T) {
	e, _ := newTestExecutor(t)

	exec := e.Execute(context.Background(), "nonexistent", map[string]any{})
	assert.False(t, exec.Success)
	assert.Equal(t, "nonexistent", exec.ToolName)
	assert.Equal(t, KindUnknownTool, exec.Kind)
	assert.Contains(t, exec.Error, "unknown tool")
	assert.Nil(t, exec.Result)
}

func TestExecuteValidationFailureSkipsHandler(t *testing.T) {
	tests := []struct {
		name  string
		input map[string]any
	}{
		{name: "above maximum", input: map[string]any{"issue_key": "PROJ-1", "comment_limit": 101}},
		{name: "below minimum", input: map[string]any{"issue_key": "PROJ-1", "comment_limit": -1}},
		{name: "missing required", input: map[string]any{}},
		{name: "empty string", input: map[string]any{"issue_key": ""}},
		{name: "wrong type", input: map[string]any{"issue_key": 42}},
		{name: "not an integer", input: map[string]any{"issue_key": "PROJ-1", "comment_limit": 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, fakes := newTestExecutor(t)

			exec := e.Execute(context.Background(), "jira_get_issue", tt.input)
			assert.False(t, exec.Success)
			assert.Equal(t, KindValidationFailure, exec.Kind)
			assert.Contains(t, exec.Error, "input validation error")
			assert.Zero(t, fakes["jira_get_issue"].invokes.Load())
		})
	}
}

func TestExecuteAppliesDefaultsAndCopiesInput(t *testing.T) {
	e, fakes := newTestExecutor(t)
	var seen map[string]any
	fakes["jira_get_issue"].handler = func(_ context.Context, input map[string]any) (*Result, error) {
		seen = input
		input["issue_key"] = "mutated"
		return Succeed("ok"), nil
	}

	raw := map[string]any{"issue_key": "PROJ-1"}
	exec := e.Execute(context.Background(), "jira_get_issue", raw)
	require.True(t, exec.Succeeded())
	assert.Equal(t, float64(10), seen["comment_limit"])
	assert.Equal(t, "PROJ-1", raw["issue_key"], "caller input is never mutated")
	assert.NotContains(t, raw, "comment_limit")
}

func TestExecuteHandlerFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler func(context.Context, map[string]any) (*Result, error)
		want    string
	}{
		{
			name: "returned error",
			handler: func(context.Context, map[string]any) (*Result, error) {
				return nil, errors.New("connection reset")
			},
			want: "connection reset",
		},
		{
			name: "panic",
			handler: func(context.Context, map[string]any) (*Result, error) {
				panic("index out of range")
			},
			want: "index out of range",
		},
		{
			name: "nil result",
			handler: func(context.Context, map[string]any) (*Result, error) {
				return nil, nil
			},
			want: "no result",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, fakes := newTestExecutor(t)
			fakes["jira_search"].handler = tt.handler

			var exec Execution
			require.NotPanics(t, func() {
				exec = e.Execute(context.Background(), "jira_search", map[string]any{"issue_key": "X-1"})
			})
			assert.False(t, exec.Success)
			assert.Equal(t, KindCallableFailure, exec.Kind)
			assert.Contains(t, exec.Error, "execution error")
			assert.Contains(t, exec.Error, tt.want)
		})
	}
}

func TestExecuteKeepsToolReportedFailureSeparate(t *testing.T) {
	e, fakes := newTestExecutor(t)
	fakes["confluence_get_page"].handler = func(context.Context, map[string]any) (*Result, error) {
		return Fail(CodeNotFound, "Page %s not found", "123"), nil
	}

	exec := e.Execute(context.Background(), "confluence_get_page", map[string]any{"issue_key": "123"})
	assert.True(t, exec.Success)
	require.NotNil(t, exec.Result)
	assert.False(t, exec.Result.Success)
	assert.Equal(t, CodeNotFound, exec.Result.Code)
	assert.Equal(t, "Page 123 not found", exec.FailureMessage())
	assert.False(t, exec.Succeeded())
	assert.Empty(t, exec.Error)
	assert.Empty(t, exec.Kind)
}

func TestExecuteLoadFailure(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	broken := &countingFactory{err: errors.New("JIRA_URL environment variable is required")}
	require.NoError(t, r.Register(testDescriptor(t, "jira_get_issue", "jira", ""), broken.Factory()))
	e := NewExecutor(r, zerolog.Nop())

	exec := e.Execute(context.Background(), "jira_get_issue", map[string]any{"issue_key": "A-1"})
	assert.False(t, exec.Success)
	assert.Equal(t, KindLoadFailure, exec.Kind)
	assert.Contains(t, exec.Error, "JIRA_URL environment variable is required")
}

func TestExecutionJSONShape(t *testing.T) {
	e, _ := newTestExecutor(t)

	exec := e.Execute(context.Background(), "jira_get_issue", map[string]any{"issue_key": "A-1"})
	data, err := json.Marshal(exec)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "jira_get_issue", decoded["tool_name"])
	assert.Equal(t, true, decoded["execution_success"])
	assert.NotContains(t, decoded, "error_message")
	inner, ok := decoded["tool_result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, inner["success"])
}

func TestValidateInput(t *testing.T) {
	e, fakes := newTestExecutor(t)

	require.NoError(t, e.ValidateInput("jira_get_issue", map[string]any{"issue_key": "A-1"}))
	require.ErrorIs(t, e.ValidateInput("jira_get_issue", map[string]any{"issue_key": "A-1", "comment_limit": 500}), ErrValidation)
	require.ErrorIs(t, e.ValidateInput("nonexistent", nil), ErrUnknownTool)

	assert.Empty(t, e.Registry().Loaded(), "validation never loads")
	assert.Zero(t, fakes["jira_get_issue"].loads.Load())
}

func TestMinimalInputFromSchemaIsAccepted(t *testing.T) {
	e, _ := newTestExecutor(t)
	for _, desc := range e.Registry().Discover("") {
		input := MinimalInput(desc.InputSchema())
		assert.NoError(t, e.ValidateInput(desc.Name(), input), desc.Name())
	}
}

func TestBindDecodesTypedInput(t *testing.T) {
	type args struct {
		IssueKey     string `json:"issue_key"`
		CommentLimit int    `json:"comment_limit"`
	}
	r := NewRegistry(zerolog.Nop())
	require.NoError(t, r.Register(testDescriptor(t, "typed", "misc", ""), Static(Bind(func(_ context.Context, in args) (*Result, error) {
		return Succeed(in), nil
	}))))
	e := NewExecutor(r, zerolog.Nop())

	exec := e.Execute(context.Background(), "typed", map[string]any{"issue_key": "A-1", "comment_limit": 3})
	require.True(t, exec.Succeeded())
	assert.Equal(t, args{IssueKey: "A-1", CommentLimit: 3}, exec.Result.Data)
}

func TestSchemaForStruct(t *testing.T) {
	type args struct {
		Query string `json:"query" jsonschema:"Search text"`
		Limit int    `json:"limit,omitempty"`
	}
	schema := SchemaFor[args]()
	assert.Equal(t, "object", schema.Type)
	assert.Equal(t, []string{"query"}, schema.Required)
	assert.Contains(t, schema.Properties, "limit")

	m, err := SchemaMap(schema)
	require.NoError(t, err)
	assert.Equal(t, "object", m["type"])

	_, err = (&jsonschema.Schema{Type: "object"}).Resolve(nil)
	require.NoError(t, err)
}
