package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// ToolDef is a client-side tool advertised to an agent during a structured
// session. The input schema is generated from a Go struct type, so shapes
// stay in sync with the handler's parameter type.
type ToolDef struct {
	Invoke      func(ctx context.Context, args json.RawMessage) (string, error)
	Name        string
	Description string
	InputSchema json.RawMessage
}

// NewToolDef registers a type-safe tool handler. The generic parameter T is
// a struct with json and jsonschema struct tags; its reflected schema is
// advertised as the tool's input schema.
func NewToolDef[T any](name, description string, handler func(context.Context, T) (string, error)) ToolDef {
	invoke := func(ctx context.Context, args json.RawMessage) (string, error) {
		var params T
		if err := json.Unmarshal(args, &params); err != nil {
			return "", fmt.Errorf("invalid arguments for tool %s: %w", name, err)
		}
		return handler(ctx, params)
	}

	return ToolDef{
		Name:        name,
		Description: description,
		InputSchema: generateSchema[T](),
		Invoke:      invoke,
	}
}

// generateSchema reflects a JSON schema from a Go struct type, inlining all
// definitions so the schema travels as one self-contained document.
func generateSchema[T any]() json.RawMessage {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}

	var zero T
	schema := reflector.Reflect(&zero)
	schema.Version = ""

	data, err := json.Marshal(schema)
	if err != nil {
		// Reflection of a plain struct type cannot fail to marshal; fall
		// back to an open object schema.
		return json.RawMessage(`{"type":"object"}`)
	}
	return data
}
