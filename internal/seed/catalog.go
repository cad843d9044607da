package seed

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"energy-agent/internal/domain"
)

// Built-in catalogs baked into the binary.
//
//go:embed data/*.yaml
var embedded embed.FS

// Target names a seedable collection and its built-in catalog file.
type Target struct {
	Name       string
	Collection string
	file       string
	decode     func(io.Reader) ([]Record, error)
}

var targets = []Target{
	{Name: "rebates", Collection: domain.CollectionRebates, file: "data/rebates.yaml", decode: decodeRebates},
	{Name: "contractors", Collection: domain.CollectionContractors, file: "data/contractors.yaml", decode: decodeContractors},
	{Name: "users", Collection: domain.CollectionUsers, file: "data/users.yaml", decode: decodeUsers},
}

// Targets returns every seedable collection in seeding order.
func Targets() []Target {
	out := make([]Target, len(targets))
	copy(out, targets)
	return out
}

// LookupTarget finds a target by name.
func LookupTarget(name string) (Target, error) {
	for _, t := range targets {
		if t.Name == strings.ToLower(strings.TrimSpace(name)) {
			return t, nil
		}
	}
	return Target{}, fmt.Errorf("seed: unknown target %q", name)
}

// Load reads the target's records from path, or from the built-in catalog
// when path is empty.
func (t Target) Load(path string) ([]Record, error) {
	var raw []byte
	var err error
	if path == "" {
		raw, err = embedded.ReadFile(t.file)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("seed: read %s catalog: %w", t.Name, err)
	}
	records, err := t.decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("seed: decode %s catalog: %w", t.Name, err)
	}
	return records, nil
}

func decodeRebates(r io.Reader) ([]Record, error) {
	var file struct {
		Rebates []domain.Rebate `yaml:"rebates"`
	}
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, err
	}
	return toRecords(file.Rebates)
}

func decodeContractors(r io.Reader) ([]Record, error) {
	var file struct {
		Contractors []domain.Contractor `yaml:"contractors"`
	}
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, err
	}
	return toRecords(file.Contractors)
}

func decodeUsers(r io.Reader) ([]Record, error) {
	var file struct {
		Users []domain.UserRecord `yaml:"users"`
	}
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, err
	}
	return toRecords(file.Users)
}

func toRecords[T Record](items []T) ([]Record, error) {
	out := make([]Record, 0, len(items))
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		id := strings.TrimSpace(item.RecordID())
		if id == "" {
			return nil, fmt.Errorf("record %d has no id", i)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate id %q", id)
		}
		seen[id] = true
		out = append(out, item)
	}
	return out, nil
}
