package research

import (
	"encoding/json"
	"fmt"
	"sync"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/plan.json
var planSchemaJSON string

//go:embed schemas/analysis.json
var analysisSchemaJSON string

//go:embed schemas/gap.json
var gapSchemaJSON string

//go:embed schemas/synthesis.json
var synthesisSchemaJSON string

const (
	schemaPlan      = "plan.json"
	schemaAnalysis  = "analysis.json"
	schemaGap       = "gap.json"
	schemaSynthesis = "synthesis.json"
)

var (
	compileOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	compileErr  error
)

func schemaFor(name string) (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		sources := map[string]string{
			schemaPlan:      planSchemaJSON,
			schemaAnalysis:  analysisSchemaJSON,
			schemaGap:       gapSchemaJSON,
			schemaSynthesis: synthesisSchemaJSON,
		}
		schemas = make(map[string]*jsonschema.Schema, len(sources))
		for n, src := range sources {
			s, err := jsonschema.CompileString(n, src)
			if err != nil {
				compileErr = fmt.Errorf("compile %s: %w", n, err)
				return
			}
			schemas[n] = s
		}
	})
	if compileErr != nil {
		return nil, compileErr
	}
	s, ok := schemas[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema: %s", name)
	}
	return s, nil
}

// decodeValidated validates raw model output against the named schema before
// unmarshalling it into out. A schema violation is an upstream generation
// failure; it propagates and terminates the research call.
func decodeValidated(name string, raw json.RawMessage, out interface{}) error {
	schema, err := schemaFor(name)
	if err != nil {
		return err
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse %s payload: %w", name, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%s payload failed schema validation: %w", name, err)
	}
	return json.Unmarshal(raw, out)
}
