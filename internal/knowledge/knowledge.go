// Package knowledge loads the read-only knowledge base: FAQ entries, lead
// field definitions and company facts.
package knowledge

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoFields is returned when the knowledge base defines no lead fields.
var ErrNoFields = errors.New("knowledge: no lead fields defined")

// FAQEntry pairs pipe-delimited match patterns with an answer.
type FAQEntry struct {
	Question string `yaml:"q"`
	Answer   string `yaml:"a"`
}

// Patterns splits Question on "|" and drops blank parts.
func (e FAQEntry) Patterns() []string {
	parts := strings.Split(e.Question, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LeadField is one step of the lead interview.
type LeadField struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label"`
}

// Leads groups the interview definition.
type Leads struct {
	Fields []LeadField `yaml:"fields"`
}

// Contacts holds how customers reach the business.
type Contacts struct {
	Phone string         `yaml:"phone"`
	Extra map[string]any `yaml:",inline"`
}

// Company holds static facts. Keys other than contacts and work_hours are
// kept so they reach the AI prompt.
type Company struct {
	Contacts  Contacts       `yaml:"contacts"`
	WorkHours string         `yaml:"work_hours"`
	Extra     map[string]any `yaml:",inline"`
}

// Base is the parsed knowledge base. It is never mutated after Parse.
type Base struct {
	FAQ     []FAQEntry `yaml:"faq"`
	Leads   Leads      `yaml:"leads"`
	Company Company    `yaml:"company"`

	serialized string
}

// Load reads and parses the knowledge base at path.
func Load(path string) (*Base, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("knowledge: read %s: %w", path, err)
	}
	kb, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("knowledge: %s: %w", path, err)
	}
	return kb, nil
}

// Parse decodes and validates a YAML knowledge base.
func Parse(raw []byte) (*Base, error) {
	var kb Base
	if err := yaml.Unmarshal(raw, &kb); err != nil {
		return nil, fmt.Errorf("knowledge: decode: %w", err)
	}
	if err := kb.validate(); err != nil {
		return nil, err
	}
	out, err := yaml.Marshal(&kb)
	if err != nil {
		return nil, fmt.Errorf("knowledge: encode: %w", err)
	}
	kb.serialized = string(out)
	return &kb, nil
}

func (kb *Base) validate() error {
	var errs []error
	for i, e := range kb.FAQ {
		if len(e.Patterns()) == 0 {
			errs = append(errs, fmt.Errorf("faq[%d]: empty q", i))
		}
		if strings.TrimSpace(e.Answer) == "" {
			errs = append(errs, fmt.Errorf("faq[%d]: empty a", i))
		}
	}
	if len(kb.Leads.Fields) == 0 {
		errs = append(errs, ErrNoFields)
	}
	seen := make(map[string]struct{}, len(kb.Leads.Fields))
	for i, f := range kb.Leads.Fields {
		switch {
		case strings.TrimSpace(f.Name) == "":
			errs = append(errs, fmt.Errorf("leads.fields[%d]: empty name", i))
		case strings.TrimSpace(f.Label) == "":
			errs = append(errs, fmt.Errorf("leads.fields[%d] %q: empty label", i, f.Name))
		}
		if _, dup := seen[f.Name]; dup {
			errs = append(errs, fmt.Errorf("leads.fields[%d]: duplicate name %q", i, f.Name))
		}
		seen[f.Name] = struct{}{}
	}
	return errors.Join(errs...)
}

// FieldNames returns lead field names in interview order.
func (kb *Base) FieldNames() []string {
	names := make([]string, len(kb.Leads.Fields))
	for i, f := range kb.Leads.Fields {
		names[i] = f.Name
	}
	return names
}

// Phone returns the company contact phone.
func (kb *Base) Phone() string { return kb.Company.Contacts.Phone }

// WorkHours returns the company work hours text.
func (kb *Base) WorkHours() string { return kb.Company.WorkHours }

// YAML returns the knowledge base serialized for model prompts.
func (kb *Base) YAML() string { return kb.serialized }
