package memory

import (
	"errors"
	"fmt"
	"sort"
	"tutorkit/core"
)

var ErrUnknownScenario = errors.New("memory: unknown scenario")

// Scenario is a roleplay persona injected ahead of the first user message.
type Scenario struct {
	Name       string `json:"name"`
	Difficulty string `json:"difficulty"`
	Prompt     string `json:"prompt"`
}

// Scenarios maps a scenario id to its definition.
type Scenarios map[string]Scenario

// IDs returns the scenario ids in sorted order.
func (c Scenarios) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SelectScenario sets the prompt of catalogue[id] on state. Unknown ids leave
// the state untouched and are logged.
func SelectScenario(state *State, catalogue Scenarios, id string, logger *core.Logger) error {
	logger = logger.OrDefault()
	sc, ok := catalogue[id]
	if !ok {
		logger.Warn("invalid scenario selected", "scenario_id", id, "available", catalogue.IDs())
		return fmt.Errorf("%w: %q", ErrUnknownScenario, id)
	}
	if err := state.SetScenario(sc.Prompt); err != nil {
		return err
	}
	logger.Info("scenario selected", "scenario_id", id, "name", sc.Name, "difficulty", sc.Difficulty)
	return nil
}
