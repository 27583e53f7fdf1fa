// Package catalog holds the static HRM schema, business rules and few-shot
// examples used as LLM context for SQL generation.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultYAML []byte

// Catalog is the immutable description of what the generated SQL may reference.
type Catalog struct {
	Version  string      `yaml:"version"`
	Dialect  string      `yaml:"dialect"`
	Tables   []Table     `yaml:"tables"`
	Rules    []RuleBlock `yaml:"rules"`
	Examples []Example   `yaml:"examples"`
}

// Table represents a database table and its structure.
type Table struct {
	Name    string   `yaml:"name"`
	Note    string   `yaml:"note,omitempty"`
	Columns []Column `yaml:"columns"`
}

// Column represents a table column.
type Column struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Note string `yaml:"note,omitempty"`
}

// RuleBlock is a named block of mandatory business-logic constraints.
type RuleBlock struct {
	Name  string `yaml:"name"`
	Title string `yaml:"title"`
	Text  string `yaml:"text"`
}

// Example is a curated (question, reasoning, sql) triple.
type Example struct {
	Question  string `yaml:"question"`
	Reasoning string `yaml:"reasoning"`
	SQL       string `yaml:"sql"`
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultYAML)
}

// Load reads a catalog revision from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	for i := range c.Rules {
		c.Rules[i].Text = strings.TrimSpace(c.Rules[i].Text)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that the catalog is internally consistent. Every example
// must reference only declared tables, so schema and examples cannot drift.
func (c *Catalog) Validate() error {
	if strings.TrimSpace(c.Version) == "" {
		return fmt.Errorf("catalog: version is required")
	}
	if len(c.Tables) == 0 {
		return fmt.Errorf("catalog: at least one table is required")
	}

	seen := make(map[string]bool, len(c.Tables))
	for _, t := range c.Tables {
		name := strings.ToLower(t.Name)
		if name == "" {
			return fmt.Errorf("catalog: table with empty name")
		}
		if seen[name] {
			return fmt.Errorf("catalog: duplicate table %q", t.Name)
		}
		if len(t.Columns) == 0 {
			return fmt.Errorf("catalog: table %q has no columns", t.Name)
		}
		seen[name] = true
	}

	rules := make(map[string]bool, len(c.Rules))
	for _, r := range c.Rules {
		if r.Name == "" || r.Text == "" {
			return fmt.Errorf("catalog: rule blocks need a name and text")
		}
		if rules[r.Name] {
			return fmt.Errorf("catalog: duplicate rule %q", r.Name)
		}
		rules[r.Name] = true
	}

	for i, ex := range c.Examples {
		if strings.TrimSpace(ex.Question) == "" || strings.TrimSpace(ex.SQL) == "" {
			return fmt.Errorf("catalog: example %d needs a question and sql", i)
		}
		if unknown := c.UnknownTables(ex.SQL); len(unknown) > 0 {
			return fmt.Errorf("catalog: example %q references unknown tables %v", ex.Question, unknown)
		}
	}
	return nil
}

// HasTable checks if a table exists in the catalog.
func (c *Catalog) HasTable(name string) bool {
	_, ok := c.Table(name)
	return ok
}

// Table looks up a table by case-insensitive name.
func (c *Catalog) Table(name string) (Table, bool) {
	lower := strings.ToLower(name)
	for _, t := range c.Tables {
		if strings.ToLower(t.Name) == lower {
			return t, true
		}
	}
	return Table{}, false
}

// TableCount returns the number of tables.
func (c *Catalog) TableCount() int {
	return len(c.Tables)
}

// Rule looks up a rule block by name.
func (c *Catalog) Rule(name string) (RuleBlock, bool) {
	for _, r := range c.Rules {
		if r.Name == name {
			return r, true
		}
	}
	return RuleBlock{}, false
}

// RuleNames returns the rule block names in catalog order.
func (c *Catalog) RuleNames() []string {
	names := make([]string, len(c.Rules))
	for i, r := range c.Rules {
		names[i] = r.Name
	}
	return names
}

var tableRefPattern = regexp.MustCompile(`(?i)\b(?:from|join)\s+([a-z_][a-z0-9_]*)`)

// UnknownTables returns table names referenced after FROM/JOIN in sql that
// the catalog does not declare. It is a textual scan, not a parser.
func (c *Catalog) UnknownTables(sql string) []string {
	var unknown []string
	for _, m := range tableRefPattern.FindAllStringSubmatch(sql, -1) {
		if !c.HasTable(m[1]) {
			unknown = append(unknown, m[1])
		}
	}
	return unknown
}

// ToText serializes the schema to a text format suitable for LLM prompts.
func (c *Catalog) ToText() string {
	if len(c.Tables) == 0 {
		return "(no tables found)"
	}

	var sb strings.Builder
	for i, table := range c.Tables {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(tableToText(table))
	}
	return sb.String()
}

// RulesText renders every rule block, numbered in catalog order.
func (c *Catalog) RulesText() string {
	var sb strings.Builder
	for i, r := range c.Rules {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%d. %s:\n%s\n", i+1, r.Title, r.Text)
	}
	return sb.String()
}

func tableToText(t Table) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("TABLE: %s", t.Name))
	if t.Note != "" {
		sb.WriteString(fmt.Sprintf(" (%s)", t.Note))
	}
	sb.WriteString("\n")

	for _, col := range t.Columns {
		sb.WriteString(fmt.Sprintf("  - %s: %s", col.Name, col.Type))
		if col.Note != "" {
			sb.WriteString(fmt.Sprintf(" // %s", col.Note))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
