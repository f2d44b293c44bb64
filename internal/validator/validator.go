package validator

// The validator is the contract guard between the Go fact tables and the
// Rego lint policies. A field that is renamed or retyped on one side makes
// the policies read undefined values and stay silent; checking the tables
// against the CUE schema first turns that into a loud error naming the
// field.

import (
	"embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	json "github.com/goccy/go-json"
)

//go:embed facts_schema.cue
var factsSchemaFS embed.FS

// FactsValidator validates relational fact tables against the facts schema.
type FactsValidator struct {
	ctx    *cue.Context
	schema cue.Value
}

// NewFactsValidator creates a validator for relational fact tables.
func NewFactsValidator() (*FactsValidator, error) {
	ctx := cuecontext.New()

	schemaBytes, err := factsSchemaFS.ReadFile("facts_schema.cue")
	if err != nil {
		return nil, fmt.Errorf("loading facts schema: %w", err)
	}

	schema := ctx.CompileBytes(schemaBytes)
	if schema.Err() != nil {
		return nil, fmt.Errorf("compiling facts schema: %w", schema.Err())
	}

	return &FactsValidator{
		ctx:    ctx,
		schema: schema,
	}, nil
}

func (v *FactsValidator) unify(data any) (cue.Value, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return cue.Value{}, fmt.Errorf("marshaling facts to JSON: %w", err)
	}
	return v.unifyJSON(jsonBytes)
}

func (v *FactsValidator) unifyJSON(jsonBytes []byte) (cue.Value, error) {
	dataValue := v.ctx.CompileBytes(jsonBytes)
	if dataValue.Err() != nil {
		return cue.Value{}, fmt.Errorf("compiling facts as CUE: %w", dataValue.Err())
	}

	factsDef := v.schema.LookupPath(cue.ParsePath("#FactTables"))
	if factsDef.Err() != nil {
		return cue.Value{}, fmt.Errorf("looking up #FactTables definition: %w", factsDef.Err())
	}

	return factsDef.Unify(dataValue), nil
}

// Validate checks that the fact tables conform to the facts schema.
func (v *FactsValidator) Validate(data any) error {
	unified, err := v.unify(data)
	if err != nil {
		return err
	}
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("facts schema validation failed: %w", err)
	}
	return nil
}

// ValidateJSON validates an exported facts document
func (v *FactsValidator) ValidateJSON(jsonBytes []byte) error {
	unified, err := v.unifyJSON(jsonBytes)
	if err != nil {
		return err
	}
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("facts schema validation failed: %w", err)
	}
	return nil
}

// ValidationErrors returns one message per schema violation
func (v *FactsValidator) ValidationErrors(data any) []string {
	unified, err := v.unify(data)
	if err != nil {
		return []string{err.Error()}
	}
	err = unified.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var errs []string
	for _, e := range errors.Errors(err) {
		errs = append(errs, e.Error())
	}
	return errs
}
