package directory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// StaticTable is the hand-maintained name→address fallback used when the
// directory has nothing for a department.
type StaticTable struct {
	Entries []*Entry
}

type staticFile struct {
	Departments []struct {
		Name      string `yaml:"name"`
		Email     string `yaml:"email"`
		Alternate string `yaml:"alternate"`
	} `yaml:"departments"`
}

// ParseStaticTable decodes the YAML form:
//
//	departments:
//	  - name: Secretaria Municipal de Obras
//	    email: "obras@prefeitura.gov.br; gabinete.obras@prefeitura.gov.br"
func ParseStaticTable(data []byte) (*StaticTable, error) {
	var f staticFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse static directory: %w", err)
	}
	t := &StaticTable{}
	for i, d := range f.Departments {
		if d.Name == "" {
			return nil, fmt.Errorf("static directory entry %d has no name", i)
		}
		t.Entries = append(t.Entries, &Entry{Name: d.Name, Primary: d.Email, Alternate: d.Alternate})
	}
	return t, nil
}

// LoadStaticTable reads path. An empty path or a missing file yields an empty table.
func LoadStaticTable(path string) (*StaticTable, error) {
	if path == "" {
		return &StaticTable{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &StaticTable{}, nil
		}
		return nil, fmt.Errorf("failed to read static directory %s: %w", path, err)
	}
	return ParseStaticTable(data)
}

// Lookup applies the same exact-then-substring matching as the directory.
func (t *StaticTable) Lookup(name string) (*Entry, MatchKind) {
	if t == nil {
		return nil, MatchNone
	}
	return Match(t.Entries, name)
}
