package entity

import (
	"errors"
	"fmt"
)

// Definition is the static declaration of a collection, as read from
// configuration.
type Definition struct {
	Name         string               `mapstructure:"name"`
	Table        string               `mapstructure:"table"`
	Schema       string               `mapstructure:"schema"`
	PrimaryKey   string               `mapstructure:"primaryKey"`
	Fillable     []string             `mapstructure:"fillable"`
	Cascade      []string             `mapstructure:"cascade"`
	Search       []string             `mapstructure:"search"`
	Required     []string             `mapstructure:"required"`
	CompositeKey []string             `mapstructure:"compositeKey"`
	Columns      []string             `mapstructure:"columns"`
	Relations    []RelationDefinition `mapstructure:"relations"`
}

// RelationDefinition declares a relation of a collection.
type RelationDefinition struct {
	Name            string   `mapstructure:"name"`
	Kind            string   `mapstructure:"kind"`
	Related         string   `mapstructure:"related"`
	ForeignKey      string   `mapstructure:"foreignKey"`
	LocalKey        string   `mapstructure:"localKey"`
	CompositeKey    []string `mapstructure:"compositeKey"`
	PivotTable      string   `mapstructure:"pivotTable"`
	PivotForeignKey string   `mapstructure:"pivotForeignKey"`
	PivotRelatedKey string   `mapstructure:"pivotRelatedKey"`
}

var ErrInvalidDefinition = errors.New("invalid collection definition")

func parseRelationKind(s string) (RelationKind, error) {
	switch s {
	case "manyToMany", "many_to_many", "belongsToMany":
		return ManyToMany, nil
	case "oneToMany", "one_to_many", "hasMany":
		return OneToMany, nil
	}
	return "", fmt.Errorf("%w: unknown relation kind %q", ErrInvalidDefinition, s)
}

func (d Definition) validate(known map[string]Definition) error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	seen := map[string]bool{}
	for _, rd := range d.Relations {
		if rd.Name == "" {
			return fmt.Errorf("%w: %s: relation name is required", ErrInvalidDefinition, d.Name)
		}
		if seen[rd.Name] {
			return fmt.Errorf("%w: %s: duplicate relation %q", ErrInvalidDefinition, d.Name, rd.Name)
		}
		seen[rd.Name] = true

		kind, err := parseRelationKind(rd.Kind)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", d.Name, rd.Name, err)
		}
		if _, ok := known[Normalize(rd.Related)]; !ok {
			return fmt.Errorf("%w: %s.%s: related collection %q is not defined", ErrInvalidDefinition, d.Name, rd.Name, rd.Related)
		}
		if kind == ManyToMany && (rd.PivotTable == "" || rd.PivotForeignKey == "" || rd.PivotRelatedKey == "") {
			return fmt.Errorf("%w: %s.%s: pivotTable, pivotForeignKey and pivotRelatedKey are required", ErrInvalidDefinition, d.Name, rd.Name)
		}
	}
	for _, c := range d.Cascade {
		if !seen[c] {
			return fmt.Errorf("%w: %s: cascade field %q is not a declared relation", ErrInvalidDefinition, d.Name, c)
		}
	}
	return nil
}
