package factories

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"tutorkit/handlers/memory"

	"github.com/bytedance/sonic"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/scenarios.schema.json
var scenariosSchema string

//go:embed schema/scenarios.json
var defaultScenarios []byte

const scenariosSchemaURL = "scenarios.schema.json"

var compiledScenariosSchema = jsonschema.MustCompileString(scenariosSchemaURL, scenariosSchema)

// DefaultScenarios returns the built-in catalogue.
func DefaultScenarios() memory.Scenarios {
	catalogue, err := ParseScenarios(defaultScenarios)
	if err != nil {
		panic(fmt.Sprintf("factories: built-in scenarios are invalid: %v", err))
	}
	return catalogue
}

// LoadScenarios reads a catalogue file. An empty path yields the built-in catalogue.
func LoadScenarios(path string) (memory.Scenarios, error) {
	if path == "" {
		return DefaultScenarios(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenarios: read %q: %w", path, err)
	}
	return ParseScenarios(data)
}

// ParseScenarios validates data against the catalogue schema and decodes it.
func ParseScenarios(data []byte) (memory.Scenarios, error) {
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("scenarios: %w", err)
	}
	if err := compiledScenariosSchema.Validate(payload); err != nil {
		return nil, fmt.Errorf("scenarios: %s", strings.TrimSpace(err.Error()))
	}
	var catalogue memory.Scenarios
	if err := sonic.Unmarshal(data, &catalogue); err != nil {
		return nil, fmt.Errorf("scenarios: %w", err)
	}
	return catalogue, nil
}
