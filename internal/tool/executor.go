package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/rs/zerolog"
)

// Executor turns a tool name and untyped input into an Execution. Every
// failure, including a panicking handler, is reported in the envelope.
type Executor struct {
	registry *Registry
	log      zerolog.Logger

	mu       sync.Mutex
	resolved map[string]*jsonschema.Resolved
}

// NewExecutor constructs an executor over registry. A nil registry gets a
// fresh empty one.
func NewExecutor(registry *Registry, log zerolog.Logger) *Executor {
	if registry == nil {
		registry = NewRegistry(log)
	}
	return &Executor{
		registry: registry,
		log:      log.With().Str("component", "executor").Logger(),
		resolved: make(map[string]*jsonschema.Resolved),
	}
}

// Registry exposes the underlying registry.
func (e *Executor) Registry() *Registry { return e.registry }

// Execute looks up, loads, validates and invokes the named tool.
func (e *Executor) Execute(ctx context.Context, name string, raw map[string]any) Execution {
	started := time.Now()
	exec := e.execute(ctx, name, raw)
	exec.Duration = time.Since(started)

	ev := e.log.Info()
	if !exec.Success {
		ev = e.log.Warn().Str("kind", string(exec.Kind)).Str("error", exec.Error)
	} else if exec.Result != nil && !exec.Result.Success {
		ev = e.log.Info().Str("code", string(exec.Result.Code))
	}
	ev.Str("tool", name).
		Bool("execution_success", exec.Success).
		Dur("took", exec.Duration).
		Msg("tool executed")
	return exec
}

func (e *Executor) execute(ctx context.Context, name string, raw map[string]any) Execution {
	desc, err := e.registry.Metadata(name)
	if err != nil {
		return failedExecution(name, err)
	}

	loaded, err := e.registry.Load(name)
	if err != nil {
		return failedExecution(name, err)
	}

	input, err := e.prepare(desc, raw)
	if err != nil {
		return failedExecution(name, err)
	}

	result, err := e.invoke(ctx, name, loaded.Handler, input)
	if err != nil {
		return failedExecution(name, err)
	}
	return Execution{ToolName: name, Success: true, Result: result}
}

// ValidateInput checks raw against the tool's input schema without loading
// or invoking the tool.
func (e *Executor) ValidateInput(name string, raw map[string]any) error {
	desc, err := e.registry.Metadata(name)
	if err != nil {
		return err
	}
	_, err = e.prepare(desc, raw)
	return err
}

// prepare returns a defaulted deep copy of raw that satisfies the input
// schema. The copy has JSON-canonical value types.
func (e *Executor) prepare(desc Descriptor, raw map[string]any) (map[string]any, error) {
	resolved, err := e.resolve(desc)
	if err != nil {
		return nil, err
	}

	input, err := normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := resolved.ApplyDefaults(&input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := resolved.Validate(input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return input, nil
}

func (e *Executor) resolve(desc Descriptor) (*jsonschema.Resolved, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rs, ok := e.resolved[desc.Name()]; ok {
		return rs, nil
	}
	rs, err := desc.InputSchema().Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
	if err != nil {
		// A schema that cannot be resolved means the tool cannot be bound.
		return nil, fmt.Errorf("%w: %s: resolve input schema: %v", ErrLoadFailure, desc.Name(), err)
	}
	e.resolved[desc.Name()] = rs
	return rs, nil
}

func normalize(raw map[string]any) (map[string]any, error) {
	out := map[string]any{}
	if raw == nil {
		return out, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("input is not JSON-serializable: %v", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("input is not a JSON object: %v", err)
	}
	return out, nil
}

func (e *Executor) invoke(ctx context.Context, name string, h Handler, input map[string]any) (res *Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Error().Str("tool", name).Bytes("stack", debug.Stack()).Msgf("handler panicked: %v", rec)
			res = nil
			err = fmt.Errorf("%w: panic: %v", ErrCallable, rec)
		}
	}()

	res, err = h.Invoke(ctx, input)
	switch {
	case err != nil:
		if errors.Is(err, ErrCallable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %T: %v", ErrCallable, err, err)
	case res == nil:
		return nil, fmt.Errorf("%w: handler returned no result", ErrCallable)
	}
	return res, nil
}
