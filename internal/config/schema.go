package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed config.schema.json
var schemaData []byte

var (
	fileSchema  *jsonschema.Schema
	compileOnce sync.Once
	compileErr  error
)

func compileSchema() error {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaData))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal config schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("config.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("add config schema resource: %w", err)
			return
		}
		fileSchema, err = compiler.Compile("config.schema.json")
		if err != nil {
			compileErr = fmt.Errorf("compile config schema: %w", err)
		}
	})
	return compileErr
}

// validateFileSettings checks decoded config file settings against the embedded schema.
// Settings decoded from YAML are re-encoded as JSON so both formats validate the same way.
func validateFileSettings(s settings) error {
	if err := compileSchema(); err != nil {
		return err
	}
	data, err := json.Marshal(map[string]interface{}(s))
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	if err := fileSchema.Validate(doc); err != nil {
		return fmt.Errorf("config file does not match schema: %w", err)
	}
	return nil
}
