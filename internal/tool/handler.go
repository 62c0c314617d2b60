package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler runs one tool against input that already passed schema validation.
// A returned error is an unexpected fault; expected domain failures are
// reported through Fail.
type Handler interface {
	Invoke(ctx context.Context, input map[string]any) (*Result, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, input map[string]any) (*Result, error)

func (f HandlerFunc) Invoke(ctx context.Context, input map[string]any) (*Result, error) {
	return f(ctx, input)
}

// Factory binds a tool implementation. It is called at most once per
// successful load.
type Factory func() (Handler, error)

// Bind decodes validated input into In before calling fn.
func Bind[In any](fn func(ctx context.Context, in In) (*Result, error)) Handler {
	return HandlerFunc(func(ctx context.Context, input map[string]any) (*Result, error) {
		var in In
		if err := decodeInput(input, &in); err != nil {
			return nil, err
		}
		return fn(ctx, in)
	})
}

func decodeInput(input map[string]any, out any) error {
	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encode input: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode input into %T: %w", out, err)
	}
	return nil
}

// Static wraps an already-built handler in a Factory.
func Static(h Handler) Factory {
	return func() (Handler, error) { return h, nil }
}
