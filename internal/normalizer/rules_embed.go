package normalizer

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed data/business_terms.yaml
var businessTermsYAML []byte

// RulesConfig holds the rule tables loaded from embedded YAML.
type RulesConfig struct {
	// canonical -> variants
	BusinessTerms map[string][]string `yaml:"business_terms"`
}

// LoadRulesConfig loads the embedded rule tables.
func LoadRulesConfig() (*RulesConfig, error) {
	cfg := &RulesConfig{}
	if err := yaml.Unmarshal(businessTermsYAML, cfg); err != nil {
		return nil, fmt.Errorf("load business terms: %w", err)
	}
	return cfg, nil
}

// SynonymMap inverts BusinessTerms into variant -> canonical.
// A variant claimed by two canonical forms is an error.
func (c *RulesConfig) SynonymMap() (map[string]string, error) {
	canon := make([]string, 0, len(c.BusinessTerms))
	for k := range c.BusinessTerms {
		canon = append(canon, k)
	}
	sort.Strings(canon)

	out := make(map[string]string)
	for _, k := range canon {
		out[k] = k
		for _, v := range c.BusinessTerms[k] {
			if prev, ok := out[v]; ok && prev != k {
				return nil, fmt.Errorf("business term %q maps to both %q and %q", v, prev, k)
			}
			out[v] = k
		}
	}
	return out, nil
}
