package selection

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/reloquent/catalogmap/internal/mapping"
)

// Result is the selection handed to the caller once browsing is done.
type Result struct {
	TableInfoList []mapping.Record `yaml:"table_info_list" json:"tableInfoList"`
	NewSchemas    []string         `yaml:"new_schemas" json:"newSchemas"`
}

// Build assembles a Result from the selected records. existing is the set
// of schemas already present at the destination.
func Build(records []mapping.Record, existing []string) *Result {
	if records == nil {
		records = []mapping.Record{}
	}
	return &Result{
		TableInfoList: records,
		NewSchemas:    NewSchemas(records, existing),
	}
}

// NewSchemas returns the destination schemas referenced by records that
// are not in existing, in first-seen order. Only two-part destination
// names name a schema. Matching is case-sensitive.
func NewSchemas(records []mapping.Record, existing []string) []string {
	known := make(map[string]bool, len(existing))
	for _, s := range existing {
		known[s] = true
	}

	schemas := []string{}
	for _, r := range records {
		if len(r.DestinationName) != 2 {
			continue
		}
		s := r.DestinationName[0]
		if known[s] {
			continue
		}
		known[s] = true
		schemas = append(schemas, s)
	}
	return schemas
}

// WriteYAML writes the result to a YAML file at the given path.
func (r *Result) WriteYAML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	data, err := r.YAML()
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

// YAML returns the YAML encoding of the result.
func (r *Result) YAML() ([]byte, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshaling selection: %w", err)
	}
	return data, nil
}

// JSON returns the JSON encoding of the result.
func (r *Result) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling selection: %w", err)
	}
	return data, nil
}

// LoadYAML reads a result written by WriteYAML.
func LoadYAML(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading selection file: %w", err)
	}
	r := &Result{}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parsing selection: %w", err)
	}
	return r, nil
}

// Summary returns a short human-readable description.
func (r *Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d object(s) selected", len(r.TableInfoList))
	if len(r.NewSchemas) > 0 {
		fmt.Fprintf(&b, ", %d new schema(s): %s", len(r.NewSchemas), strings.Join(r.NewSchemas, ", "))
	}
	return b.String()
}

// FilterByPattern returns the labels matching a glob-like pattern
// (e.g., "dbo.order_*"). A comma separates alternatives.
func FilterByPattern(labels []string, pattern string) []string {
	var matched []string
	for _, l := range labels {
		for _, p := range strings.Split(pattern, ",") {
			if matchGlob(l, strings.TrimSpace(p)) {
				matched = append(matched, l)
				break
			}
		}
	}
	return matched
}

func matchGlob(name, pattern string) bool {
	if pattern == "*" {
		return true
	}
	ok, err := filepath.Match(pattern, name)
	return err == nil && ok
}
