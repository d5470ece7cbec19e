package units

import (
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

//go:embed schema/unit-profile-v1.json
var unitProfileSchemaJSON string

type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("unit-profile-v1.json",
		strings.NewReader(unitProfileSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("unit-profile-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// ValidateDocument checks a JSON document against the profile schema.
func (v *Validator) ValidateDocument(data []byte) error {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := v.schema.Validate(doc); err != nil {
		return types.NewValidationError("PROFILE_SCHEMA", fmt.Sprintf("schema validation failed: %v", err))
	}

	return nil
}

// ValidateProfile runs the schema and the index invariants.
func (v *Validator) ValidateProfile(profile *types.StoredUnitProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	if err := v.ValidateDocument(data); err != nil {
		return err
	}

	return profile.Validate()
}
