package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"jobmate/aggregator-service/internal/model"
)

// sourcesFile is the layout of the seed file:
//
//	sources:
//	  - name: greenhouse
//	    display_name: Greenhouse
//	    enabled: false
//	    connection:
//	      board_token: acme
type sourcesFile struct {
	Sources []model.SourceSeed `yaml:"sources"`
}

// LoadSourceSeeds reads and validates the source seed file.
func LoadSourceSeeds(path string) ([]model.SourceSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return ParseSourceSeeds(data)
}

// ParseSourceSeeds decodes seed YAML. Every entry must name a known source
// exactly once.
func ParseSourceSeeds(data []byte) ([]model.SourceSeed, error) {
	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}

	seen := make(map[model.SourceName]bool, len(f.Sources))
	for i, s := range f.Sources {
		if err := validate.Struct(s); err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		if _, err := model.ParseSourceName(string(s.Name)); err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("sources[%d]: duplicate source %q", i, s.Name)
		}
		seen[s.Name] = true
		if f.Sources[i].ConnectionConfig == nil {
			f.Sources[i].ConnectionConfig = model.ConnectionConfig{}
		}
	}
	return f.Sources, nil
}
