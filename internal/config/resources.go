package config

import (
	"fmt"

	"github.com/klubi/rstore/internal/store"
)

// ResourceTypeConfig declares one resource type in the config file:
//
//	resourceTypes:
//	  - name: widget
//	    required: [name]
//	    indexes: [name]
//	    sets: [widgets]
//	    validations:
//	      - field: name
//	        kind: pattern
//	        pattern: "^[a-z-]+$"
//	        message: lowercase names only
//
// Per-field settings are lists rather than maps because viper lowercases
// map keys.
type ResourceTypeConfig struct {
	Name          string               `mapstructure:"name"`
	Required      []string             `mapstructure:"required"`
	Fields        []string             `mapstructure:"fields"`
	Indexes       []string             `mapstructure:"indexes"`
	Sets          []string             `mapstructure:"sets"`
	Primary       string               `mapstructure:"primary"`
	Validations   []ValidationConfig   `mapstructure:"validations"`
	Generators    []GeneratorConfig    `mapstructure:"generators"`
	Links         []LinkConfig         `mapstructure:"links"`
	CompositeKeys []CompositeKeyConfig `mapstructure:"compositeKeys"`
}

type ValidationConfig struct {
	Field   string   `mapstructure:"field"`
	Kind    string   `mapstructure:"kind"` // nonEmpty, pattern, oneOf, length
	Pattern string   `mapstructure:"pattern"`
	Values  []string `mapstructure:"values"`
	Min     int      `mapstructure:"min"`
	Max     int      `mapstructure:"max"`
	Message string   `mapstructure:"message"`
}

type GeneratorConfig struct {
	Field string `mapstructure:"field"`
	Kind  string `mapstructure:"kind"` // uuid, token, timestamp
	Bytes int    `mapstructure:"bytes"`
}

type LinkConfig struct {
	Field  string `mapstructure:"field"`
	Target string `mapstructure:"target"`
	Set    string `mapstructure:"set"`
}

type CompositeKeyConfig struct {
	Name   string   `mapstructure:"name"`
	Fields []string `mapstructure:"fields"`
}

// BuildResourceTypes converts every declared resource type into its store
// configuration, keyed by name. Links must target declared types.
func (c *Config) BuildResourceTypes() (map[string]*store.ResourceType, error) {
	types := make(map[string]*store.ResourceType, len(c.ResourceTypes))
	for _, rc := range c.ResourceTypes {
		if _, dup := types[rc.Name]; dup {
			return nil, fmt.Errorf("resource type %q declared twice: %w", rc.Name, store.ErrInvalidConfig)
		}
		rt, err := rc.build()
		if err != nil {
			return nil, fmt.Errorf("resource type %q: %w", rc.Name, err)
		}
		types[rc.Name] = rt
	}

	for _, rc := range c.ResourceTypes {
		for _, l := range rc.Links {
			if _, ok := types[l.Target]; !ok {
				return nil, fmt.Errorf("resource type %q: link to undeclared type %q: %w",
					rc.Name, l.Target, store.ErrInvalidConfig)
			}
		}
	}
	return types, nil
}

func (rc ResourceTypeConfig) build() (*store.ResourceType, error) {
	opts := []store.TypeOption{
		store.WithRequired(rc.Required...),
		store.WithFields(rc.Fields...),
		store.WithIndexes(rc.Indexes...),
		store.WithSets(rc.Sets...),
	}
	if rc.Primary != "" {
		opts = append(opts, store.WithPrimary(rc.Primary))
	}

	for _, vc := range rc.Validations {
		v, err := store.NewValidator(vc.Kind, vc.Pattern, vc.Values, vc.Min, vc.Max)
		if err != nil {
			return nil, fmt.Errorf("validation of %s: %w", vc.Field, err)
		}
		opts = append(opts, store.WithValidation(vc.Field, v, vc.Message))
	}
	for _, gc := range rc.Generators {
		g, err := store.NewGenerator(gc.Kind, gc.Bytes)
		if err != nil {
			return nil, fmt.Errorf("generator of %s: %w", gc.Field, err)
		}
		opts = append(opts, store.WithGenerator(gc.Field, g))
	}
	for _, l := range rc.Links {
		opts = append(opts, store.WithAssociations(store.Link{Field: l.Field, Target: l.Target, Set: l.Set}))
	}
	for _, ck := range rc.CompositeKeys {
		opts = append(opts, store.WithAssociations(store.CompositeKey{Name: ck.Name, Fields: ck.Fields}))
	}

	return store.NewResourceType(rc.Name, opts...)
}

// IndexLayout returns the store index layout selected by store.indexLayout.
func (c *Config) IndexLayout() store.IndexLayout {
	if c.Store.IndexLayout == "string" {
		return store.StringLayout{}
	}
	return store.HashLayout{}
}
