package tool

import (
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// Descriptor is the immutable metadata of one tool. It is cheap to create and
// never requires the implementation to be loaded.
type Descriptor struct {
	name        string
	category    string
	description string
	input       *jsonschema.Schema
	output      *jsonschema.Schema
}

// NewDescriptor validates and builds a descriptor. Name must be non-blank and
// both schemas must be present.
func NewDescriptor(name, category, description string, input, output *jsonschema.Schema) (Descriptor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Descriptor{}, fmt.Errorf("%w: name is empty", ErrInvalidDescriptor)
	}
	if input == nil {
		return Descriptor{}, fmt.Errorf("%w: tool %s has no input schema", ErrInvalidDescriptor, name)
	}
	if output == nil {
		return Descriptor{}, fmt.Errorf("%w: tool %s has no output schema", ErrInvalidDescriptor, name)
	}
	return Descriptor{
		name:        name,
		category:    strings.TrimSpace(category),
		description: strings.TrimSpace(description),
		input:       input,
		output:      output,
	}, nil
}

// MustDescriptor is NewDescriptor for static tool tables; it panics on error.
func MustDescriptor(name, category, description string, input, output *jsonschema.Schema) Descriptor {
	desc, err := NewDescriptor(name, category, description, input, output)
	if err != nil {
		panic(err)
	}
	return desc
}

func (d Descriptor) Name() string        { return d.name }
func (d Descriptor) Category() string    { return d.category }
func (d Descriptor) Description() string { return d.description }

// InputSchema returns the schema raw input is validated against. Callers must
// treat it as read-only.
func (d Descriptor) InputSchema() *jsonschema.Schema { return d.input }

// OutputSchema returns the shape of the Result a handler produces.
func (d Descriptor) OutputSchema() *jsonschema.Schema { return d.output }

// IsZero reports whether d was never initialised.
func (d Descriptor) IsZero() bool { return d.name == "" }
