// Package genre maps DVB content_descriptor nibble codes to
// human-readable genre names, loaded from a YAML table the same way
// samoyed's deviceid package loads tocalls.yaml: a small bundled
// default plus an optional override file a caller points at.
package genre

import (
	"embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed genres.yaml
var defaultGenresYAML embed.FS

// entry mirrors one record of genres.yaml.
type entry struct {
	Level1 uint8  `yaml:"level1"`
	Level2 uint8  `yaml:"level2"`
	Name   string `yaml:"name"`
}

type code struct {
	level1 uint8
	level2 uint8
}

// Table maps a (content_nibble_level_1, content_nibble_level_2) pair
// to its genre name.
type Table struct {
	byCode map[code]string
}

// Load parses a genre table from r, in the same {level1, level2, name}
// list format as the bundled default.
func Load(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("genre: read table: %w", err)
	}

	var entries []entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("genre: parse table: %w", err)
	}

	t := &Table{byCode: make(map[code]string, len(entries))}
	for _, e := range entries {
		t.byCode[code{e.Level1, e.Level2}] = e.Name
	}
	return t, nil
}

// LoadFile loads a genre table from a YAML file on disk, for operators
// who want to extend or replace the bundled table without a rebuild.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("genre: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Default loads the table bundled into the binary.
func Default() (*Table, error) {
	f, err := defaultGenresYAML.Open("genres.yaml")
	if err != nil {
		return nil, fmt.Errorf("genre: open bundled table: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Name returns the genre name for a content_nibble_level_1/2 pair, as
// decoded by dvbstc.FindContentGenreCode. Unrecognized or reserved
// codes (most of the DVB content_descriptor space is broadcaster/user
// defined) report ok=false.
func (t *Table) Name(level1, level2 uint8) (string, bool) {
	name, ok := t.byCode[code{level1, level2}]
	return name, ok
}
