package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Overlay is the YAML tuning file shape. Only scoring knobs are exposed:
// operators tune thresholds in the field far more often than transport
// settings, and a bad threshold should not require a redeploy to fix.
// Pointer fields distinguish "absent" from zero.
type Overlay struct {
	RPMCeiling      *float64 `yaml:"rpm_ceiling"`
	VelocityWeight  *float64 `yaml:"velocity_weight"`
	DiversityWeight *float64 `yaml:"diversity_weight"`

	EscalationThreshold *float64 `yaml:"escalation_threshold"`
	Tier3Score          *float64 `yaml:"tier3_score"`
	Tier3MinMinutes     *float64 `yaml:"tier3_min_minutes"`
	Tier2Score          *float64 `yaml:"tier2_score"`
	Tier2MinMinutes     *float64 `yaml:"tier2_min_minutes"`
	Tier2MaxMinutes     *float64 `yaml:"tier2_max_minutes"`
}

// ApplyOverlay merges a YAML tuning file into the config. Unknown keys are
// rejected so a typoed threshold name fails loudly instead of silently
// keeping the default.
func (c *Config) ApplyOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config overlay: %w", err)
	}

	var overlay Overlay
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&overlay); err != nil {
		return fmt.Errorf("failed to parse config overlay: %w", err)
	}

	apply := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&c.RPMCeiling, overlay.RPMCeiling)
	apply(&c.VelocityWeight, overlay.VelocityWeight)
	apply(&c.DiversityWeight, overlay.DiversityWeight)
	apply(&c.EscalationThreshold, overlay.EscalationThreshold)
	apply(&c.Tier3Score, overlay.Tier3Score)
	apply(&c.Tier3MinMinutes, overlay.Tier3MinMinutes)
	apply(&c.Tier2Score, overlay.Tier2Score)
	apply(&c.Tier2MinMinutes, overlay.Tier2MinMinutes)
	apply(&c.Tier2MaxMinutes, overlay.Tier2MaxMinutes)

	return nil
}
