package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ruleFile is the on-disk YAML shape for a rule catalog.
type ruleFile struct {
	Rules []*RuleDefinition `yaml:"rules"`
}

// LoadFile reads rule definitions from a YAML file and builds a catalog.
// A corrupt catalog is a fatal startup error.
func LoadFile(path string, allowedVariables []string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rule file: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("rule file %s contains no rules", path)
	}

	return New(file.Rules, allowedVariables)
}
