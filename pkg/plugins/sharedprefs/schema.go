package sharedprefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const keyOnlySchema = `{
	"type": "object",
	"required": ["key"],
	"properties": {"key": {"type": "string", "minLength": 1}}
}`

func setterSchema(valueSchema string) string {
	return `{
	"type": "object",
	"required": ["key", "value"],
	"properties": {
		"key": {"type": "string", "minLength": 1},
		"value": ` + valueSchema + `
	}
}`
}

// setters maps each setter method to the kind it stores.
var setters = map[string]string{
	"setBool":       KindBool,
	"setInt":        KindInt,
	"setDouble":     KindDouble,
	"setString":     KindString,
	"setStringList": KindStringList,
}

var schemas = map[string]*gojsonschema.Schema{
	"remove":        mustSchema(keyOnlySchema),
	"setBool":       mustSchema(setterSchema(`{"type": "boolean"}`)),
	"setInt":        mustSchema(setterSchema(`{"type": "integer"}`)),
	"setDouble":     mustSchema(setterSchema(`{"type": "number"}`)),
	"setString":     mustSchema(setterSchema(`{"type": "string"}`)),
	"setStringList": mustSchema(setterSchema(`{"type": "array", "items": {"type": "string"}}`)),
}

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("sharedprefs: invalid schema: %v", err))
	}
	return schema
}

// validateArgs checks args against the schema for method. Methods without a
// schema take no arguments and always pass.
func validateArgs(method string, args any) error {
	schema, ok := schemas[method]
	if !ok {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("arguments are not representable: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("arguments could not be validated: %w", err)
	}
	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return errors.New(strings.Join(details, "; "))
	}
	return nil
}
