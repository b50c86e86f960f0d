package config

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var timeOfDayRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Validate checks the configuration for structural errors. It runs the
// struct tags first, then the cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config field %s fails rule %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("config validation: %w", err)
	}

	for _, at := range []struct {
		name  string
		value string
	}{
		{"integrators.events.at", c.Integrators.Events.At},
		{"integrators.tone.at", c.Integrators.Tone.At},
		{"integrators.risk_index.at", c.Integrators.RiskIndex.At},
	} {
		if at.value != "" && !timeOfDayRe.MatchString(at.value) {
			return fmt.Errorf("config field %s: %q is not a HH:MM time of day", at.name, at.value)
		}
	}

	if c.Consolidator.NewsRiskThreshold >= 0.8 {
		return fmt.Errorf("config field consolidator.news_risk_threshold: %v would drop all but critical articles", c.Consolidator.NewsRiskThreshold)
	}
	if c.Enricher.Timeout <= 0 {
		return fmt.Errorf("config field enricher.timeout: must be positive")
	}
	if c.Translation.Timeout <= 0 {
		return fmt.Errorf("config field translation.timeout: must be positive")
	}
	return nil
}
