package config

import (
	_ "embed"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema/publish-config.schema.json
var publishConfigSchema []byte

// SchemaVersion is the version of the embedded publish configuration schema.
const SchemaVersion = "1.0.0"

// ValidateSettings validates a settings map with lower-cased keys, as
// produced by viper, against the embedded schema.
func ValidateSettings(settings map[string]interface{}) error {
	schemaLoader := gojsonschema.NewBytesLoader(publishConfigSchema)
	documentLoader := gojsonschema.NewGoLoader(settings)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %v", err)
	}

	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return &Error{Problems: problems}
	}

	return nil
}
