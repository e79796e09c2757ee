package patch

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Metadata is the optional patch.yaml of a unit. conflicts_with is accepted
// but not interpreted.
type Metadata struct {
	Name            string   `yaml:"name"`
	Version         string   `yaml:"version"`
	Description     string   `yaml:"description"`
	Author          string   `yaml:"author"`
	Tags            []string `yaml:"tags"`
	RequiresAndroid string   `yaml:"requires_android"`
	ConflictsWith   []string `yaml:"conflicts_with"`
}

func loadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- patch.yaml inside a configured patch directory
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m Metadata
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &m, nil
}

// HasAnyTag reports whether the metadata carries at least one of tags.
func (m *Metadata) HasAnyTag(tags []string) bool {
	if m == nil {
		return false
	}
	for _, want := range tags {
		for _, have := range m.Tags {
			if strings.EqualFold(strings.TrimSpace(want), strings.TrimSpace(have)) {
				return true
			}
		}
	}
	return false
}

var requirementPattern = regexp.MustCompile(`^(>=|<=|=|>|<)?\s*(\d+)$`)

// Requirement is a parsed requires_android constraint such as ">=14".
type Requirement struct {
	Op      string
	Version int
}

// ParseRequirement parses [op] integer; a missing operator means "=".
func ParseRequirement(s string) (Requirement, error) {
	m := requirementPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Requirement{}, fmt.Errorf("invalid android requirement %q", s)
	}
	v, err := strconv.Atoi(m[2])
	if err != nil {
		return Requirement{}, fmt.Errorf("invalid android requirement %q: %w", s, err)
	}
	op := m[1]
	if op == "" {
		op = "="
	}
	return Requirement{Op: op, Version: v}, nil
}

// Satisfied reports whether version meets the requirement.
func (r Requirement) Satisfied(version int) bool {
	switch r.Op {
	case ">":
		return version > r.Version
	case "<":
		return version < r.Version
	case ">=":
		return version >= r.Version
	case "<=":
		return version <= r.Version
	default:
		return version == r.Version
	}
}

func (r Requirement) String() string { return r.Op + strconv.Itoa(r.Version) }
