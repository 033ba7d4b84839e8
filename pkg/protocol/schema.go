package protocol

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateConfig checks a node's config against the executor's JSON schema.
// Executors call this at the top of Execute, before any I/O; a violation is
// always non-retriable. Config validation belongs to the node kind, not the
// engine.
func ValidateConfig(schema map[string]any, config map[string]any) error {
	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return NewNonRetriableError("invalid node config schema: %w", err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}

	return NewNonRetriableError("invalid node config: %s", strings.Join(details, "; "))
}
