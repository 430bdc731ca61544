package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lazypower/garden/internal/store"
)

// typesFile mirrors the interaction type defaults file:
//
//	interactionTypes:
//	  - name: Coffee
//	    icon: cafe-outline
//	    entityTypes: [person]
//	    tags: null
//	    score: 3
//	    color: "#9C6644"
//	tags:
//	  - name: Family
//	    icon: home-outline
type typesFile struct {
	InteractionTypes []typeRecord `yaml:"interactionTypes"`
	Tags             []tagRecord  `yaml:"tags"`
}

type typeRecord struct {
	Name        string   `yaml:"name"`
	Icon        string   `yaml:"icon"`
	EntityTypes []string `yaml:"entityTypes"`
	Tags        []string `yaml:"tags"`
	Score       *float64 `yaml:"score"`
	Color       string   `yaml:"color"`
}

type tagRecord struct {
	Name  string `yaml:"name"`
	Icon  string `yaml:"icon"`
	Color string `yaml:"color"`
}

// LoadTypeConfig parses an interaction type defaults document. Records keep
// their file order. A missing score defaults to 1.
func LoadTypeConfig(r io.Reader) (store.TypeConfig, error) {
	var f typesFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return store.TypeConfig{}, fmt.Errorf("parse type config: %w", err)
	}

	var cfg store.TypeConfig
	for i, t := range f.Tags {
		if strings.TrimSpace(t.Name) == "" {
			return store.TypeConfig{}, fmt.Errorf("tags[%d]: %w", i, store.ErrEmptyName)
		}
		cfg.Tags = append(cfg.Tags, store.TagSpec{Name: t.Name, Icon: t.Icon, Color: t.Color})
	}

	seen := make(map[string]bool)
	for i, t := range f.InteractionTypes {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return store.TypeConfig{}, fmt.Errorf("interactionTypes[%d]: %w", i, store.ErrEmptyName)
		}
		key := strings.ToLower(name)
		if seen[key] {
			return store.TypeConfig{}, fmt.Errorf("interactionTypes[%d]: duplicate name %q", i, name)
		}
		seen[key] = true

		spec := store.TypeSpec{Name: name, Icon: t.Icon, Tags: t.Tags, Color: t.Color, Score: 1}
		if t.Score != nil {
			if *t.Score < 0 {
				return store.TypeConfig{}, fmt.Errorf("interactionTypes[%d]: score must not be negative", i)
			}
			spec.Score = *t.Score
		}
		for _, k := range t.EntityTypes {
			kind, err := store.ParseKind(k)
			if err != nil {
				return store.TypeConfig{}, fmt.Errorf("interactionTypes[%d]: %w", i, err)
			}
			spec.Kinds = append(spec.Kinds, kind)
		}
		cfg.Types = append(cfg.Types, spec)
	}
	return cfg, nil
}

// LoadTypeConfigFile opens and parses a type defaults file.
func LoadTypeConfigFile(path string) (store.TypeConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return store.TypeConfig{}, fmt.Errorf("open type config: %w", err)
	}
	defer f.Close()
	return LoadTypeConfig(f)
}
