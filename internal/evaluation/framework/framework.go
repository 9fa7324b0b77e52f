package framework

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_framework.yaml
var defaultFramework []byte

// Order in which competencies are evaluated and reported.
var CaseStudyCompetencies = []string{
	"strategic_thinking",
	"innovation",
	"risk_balance",
	"digital_transformation",
}

type Indicator struct {
	Code        string `yaml:"code" json:"code"`
	Description string `yaml:"description" json:"description"`
}

type Rubric struct {
	NeedsImprovement    string `yaml:"needs_improvement" json:"needs_improvement"`
	MeetsRequirements   string `yaml:"meets_requirements" json:"meets_requirements"`
	ExceedsRequirements string `yaml:"exceeds_requirements" json:"exceeds_requirements"`
}

type Competency struct {
	ID                   string      `yaml:"-" json:"id"`
	Name                 string      `yaml:"name" json:"name"`
	NameEn               string      `yaml:"name_en" json:"name_en"`
	Description          string      `yaml:"description" json:"description"`
	BehavioralIndicators []Indicator `yaml:"behavioral_indicators" json:"behavioral_indicators"`
	ScoringRubric        Rubric      `yaml:"scoring_rubric" json:"scoring_rubric"`
}

type Framework struct {
	Version      string                 `yaml:"version"`
	Name         string                 `yaml:"name"`
	Competencies map[string]*Competency `yaml:"competencies"`
	order        []string
}

// Load reads the framework at path, or the embedded default when path is empty.
func Load(path string) (*Framework, error) {
	raw := defaultFramework
	if p := strings.TrimSpace(path); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read framework %s: %w", p, err)
		}
		raw = b
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Framework, error) {
	var f Framework
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse framework: %w", err)
	}
	if len(f.Competencies) == 0 {
		return nil, fmt.Errorf("framework has no competencies")
	}
	for id, c := range f.Competencies {
		if c == nil {
			return nil, fmt.Errorf("competency %q is empty", id)
		}
		c.ID = id
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("competency %q missing name", id)
		}
		if c.NameEn == "" {
			c.NameEn = c.Name
		}
	}

	seen := map[string]bool{}
	for _, id := range CaseStudyCompetencies {
		if _, ok := f.Competencies[id]; ok {
			f.order = append(f.order, id)
			seen[id] = true
		}
	}
	var extra []string
	for id := range f.Competencies {
		if !seen[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	f.order = append(f.order, extra...)
	return &f, nil
}

// IDs returns competency ids in evaluation order.
func (f *Framework) IDs() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

func (f *Framework) Get(id string) (*Competency, bool) {
	c, ok := f.Competencies[id]
	return c, ok
}
