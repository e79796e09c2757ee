package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/rommer/internal/foundation/errors"
)

//go:embed schema.json
var documentSchema []byte

const schemaResourceID = "inmemory://rommer/config.schema.json"

var (
	compiledSchema     *jsonschema.Schema
	compiledSchemaErr  error
	compiledSchemaOnce sync.Once
)

func loadSchema() (*jsonschema.Schema, error) {
	compiledSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaResourceID, bytes.NewReader(documentSchema)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, compiledSchemaErr = compiler.Compile(schemaResourceID)
	})
	return compiledSchema, compiledSchemaErr
}

// validateDocument checks the raw YAML against the embedded JSON Schema.
// The YAML is normalized through a JSON round-trip so numbers and maps have
// the shapes the validator expects.
func validateDocument(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "failed to parse configuration").Fatal().Build()
	}
	if raw == nil {
		return ferrors.ConfigError("configuration is empty").Build()
	}

	payload, err := normalizeValue(raw)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "configuration is not representable as JSON").Fatal().Build()
	}

	schema, err := loadSchema()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "configuration schema failed to compile").Fatal().Build()
	}

	if err := schema.Validate(payload); err != nil {
		var verr *jsonschema.ValidationError
		if stderrors.As(err, &verr) {
			msgs := flattenValidation(verr)
			return ferrors.ConfigError("invalid configuration: "+strings.Join(msgs, "; ")).
				WithContext("field", firstField(verr)).
				Build()
		}
		return ferrors.WrapError(err, ferrors.CategoryConfig, "invalid configuration").Fatal().Build()
	}
	return nil
}

func normalizeValue(value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// flattenValidation collects leaf messages, each prefixed with the field they refer to.
func flattenValidation(verr *jsonschema.ValidationError) []string {
	seen := make(map[string]struct{})
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			seen[fmt.Sprintf("%s: %s", fieldName(e.InstanceLocation), e.Message)] = struct{}{}
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)

	out := make([]string, 0, len(seen))
	for msg := range seen {
		out = append(out, msg)
	}
	sort.Strings(out)
	return out
}

func firstField(verr *jsonschema.ValidationError) string {
	for len(verr.Causes) > 0 {
		verr = verr.Causes[0]
	}
	return fieldName(verr.InstanceLocation)
}

// fieldName turns a JSON pointer such as /output/filename into output.filename.
func fieldName(pointer string) string {
	name := strings.ReplaceAll(strings.Trim(pointer, "/"), "/", ".")
	if name == "" {
		return "(root)"
	}
	return name
}
