package scaffold

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/svylabs/ilumina/internal/model"
)

// SimulationConfigFile is the harness configuration file name.
const SimulationConfigFile = "simulation.yaml"

// SimulationConfig is the configuration the scaffolded harness reads at
// startup: the actors available and the scenarios to run.
type SimulationConfig struct {
	Submission string           `yaml:"submission"`
	Actors     []ConfiguredActor `yaml:"actors"`
	Scenarios  []model.Scenario  `yaml:"scenarios"`
}

// ConfiguredActor maps an actor to its generated class and actions.
type ConfiguredActor struct {
	Name    string   `yaml:"name"`
	Class   string   `yaml:"class"`
	Summary string   `yaml:"summary,omitempty"`
	Actions []string `yaml:"actions"`
}

// WriteSimulationConfig renders the harness configuration into dir.
func WriteSimulationConfig(dir, submissionID string, actors *model.ActorSummary, scenarios []model.Scenario) error {
	cfg := SimulationConfig{
		Submission: submissionID,
		Scenarios:  scenarios,
	}

	for _, actor := range actors.Actors {
		configured := ConfiguredActor{
			Name:    actor.Name,
			Class:   ActorIdent(actor.Name),
			Summary: actor.Summary,
		}
		for _, action := range actor.Actions {
			configured.Actions = append(configured.Actions,
				ActionClassName(action.ContractName, action.FunctionName))
		}
		cfg.Actors = append(cfg.Actors, configured)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return eris.Wrap(err, "scaffold: marshal simulation config")
	}

	path := filepath.Join(dir, SimulationConfigFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "scaffold: write %s", path)
	}
	return nil
}
