// Package classify grades filings as financial or not and pulls structured
// facts out of filing text. Everything here is pure and deterministic: no
// I/O, no clock, no network.
package classify

import (
	_ "embed"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var rulesYAML []byte

// Rules holds the keyword tables and patterns driving classification and
// extraction. The default set ships embedded in the binary.
type Rules struct {
	ResultCategories       []string `yaml:"result_categories"`
	BoardMeetingCategories []string `yaml:"board_meeting_categories"`
	HighConfidenceKeywords []string `yaml:"high_confidence_keywords"`
	BoardMeetingKeywords   []string `yaml:"board_meeting_keywords"`
	PeriodPatterns         []string `yaml:"period_patterns"`

	periodRes []*regexp.Regexp
}

// ParseRules decodes a YAML rule set and compiles its patterns.
func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "classify: parse rules")
	}
	for _, p := range r.PeriodPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, eris.Wrapf(err, "classify: compile period pattern %q", p)
		}
		r.periodRes = append(r.periodRes, re)
	}
	return &r, nil
}

var defaultRules = func() *Rules {
	r, err := ParseRules(rulesYAML)
	if err != nil {
		panic(err)
	}
	return r
}()

// Default returns the embedded rule set.
func Default() *Rules {
	return defaultRules
}
