package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// pairsFile is the on-disk layout of PAIRS_FILE:
//
//	pairs:
//	  - type: genre
//	    taxonomy: genre_tax
//	    redirect: true
type pairsFile struct {
	Pairs []PairConfig `yaml:"pairs"`
}

// LoadPairsFile reads the pair list from a YAML file.
func LoadPairsFile(path string) ([]PairConfig, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- operator supplied path
	if err != nil {
		return nil, fmt.Errorf("read pairs file: %w", err)
	}

	var f pairsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse pairs file %s: %w", path, err)
	}
	return f.Pairs, nil
}
