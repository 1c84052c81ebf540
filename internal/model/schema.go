package model

import (
	"github.com/invopop/jsonschema"
)

// JSONSchema lets the reflector describe WireInt as "digits or integer".
func (WireInt) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string", Pattern: `^-?[0-9]+$`},
			{Type: "integer"},
		},
	}
}

// WireSchema returns the JSON Schema of a solver wire record.
func WireSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.Reflect(WireJob{})
}
