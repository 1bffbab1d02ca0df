package config

import (
	"reflect"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/marmos91/pagesweep/internal/bytesize"
)

// Schema returns the JSON schema of the configuration file, for editor
// completion and validation.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "yaml",
		Mapper:                    schemaMapper,
	}

	schema := reflector.Reflect(&Config{})
	schema.Version = "https://json-schema.org/draft/2020-12/schema"
	schema.Title = "pagesweep Configuration"
	schema.Description = "Configuration schema for the sweepd daemon"
	return schema
}

// schemaMapper describes the types the decode hooks accept as strings.
func schemaMapper(t reflect.Type) *jsonschema.Schema {
	switch t {
	case reflect.TypeOf(time.Duration(0)):
		return &jsonschema.Schema{
			OneOf: []*jsonschema.Schema{
				{Type: "string", Pattern: `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`},
				{Type: "integer", Description: "nanoseconds"},
			},
		}
	case reflect.TypeOf(bytesize.ByteSize(0)):
		return &jsonschema.Schema{
			OneOf: []*jsonschema.Schema{
				{Type: "string", Pattern: `^[0-9]+(\.[0-9]+)?\s*([kKmMgGtT]i?[bB]?|[bB])?$`},
				{Type: "integer", Description: "bytes"},
			},
		}
	}
	return nil
}
