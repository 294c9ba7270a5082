package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Load reads every *.json document in dir as a SystemDef and builds a
// Catalog. Files are ingested in lexical order so system ordering is stable.
func Load(dir string, defaultTTL time.Duration) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog: read dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var systems []*SystemDef
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("catalog: read %s: %w", name, err)
		}
		var s SystemDef
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("catalog: parse %s: %w", name, err)
		}
		systems = append(systems, &s)
	}
	return New(systems, defaultTTL)
}
