// Package entity resolves collection names to entity schemas: table, primary
// key, writable fields, cascade-eligible relations and search fields.
//
// Schemas are declared statically (see Definition) and resolved lazily into
// a process-wide cache owned by a Registry. Resolved schemas never change for
// the lifetime of the Registry.
package entity

import "slices"

// RelationKind tags a relation descriptor. It is decided once, when the
// definition is registered.
type RelationKind string

const (
	ManyToMany RelationKind = "manyToMany"
	OneToMany  RelationKind = "oneToMany"
)

// Relation describes a direct relation from one collection to another.
type Relation struct {
	Name    string
	Kind    RelationKind
	Related string // normalized collection name of the related schema

	// one-to-many
	ForeignKey   string   // column on the related table holding the parent key
	LocalKey     string   // parent column referenced by ForeignKey
	CompositeKey []string // ordered; empty means match by the related primary key

	// many-to-many
	PivotTable      string
	PivotForeignKey string // pivot column holding the parent key
	PivotRelatedKey string // pivot column holding the related key
}

// Schema is the resolved metadata of one collection.
type Schema struct {
	Name         string
	Table        string
	DBSchema     string
	PrimaryKey   string
	Fillable     []string // nil means every payload field is writable
	Cascade      []string // cascade-eligible relation names, in declaration order
	Search       []string
	CompositeKey []string
	Columns      []string // nil when unknown
	Relations    []*Relation
}

// Relation returns the relation declared under name.
func (s *Schema) Relation(name string) (*Relation, bool) {
	for _, rel := range s.Relations {
		if rel.Name == name {
			return rel, true
		}
	}
	return nil, false
}

// HasColumn reports whether field is a known column. It is always true when
// the column list is unknown.
func (s *Schema) HasColumn(field string) bool {
	if s.Columns == nil {
		return true
	}
	return slices.Contains(s.Columns, field)
}

// Writable returns the fields a caller may set: the allow-list plus the
// cascade-eligible relations. It returns nil when no allow-list is declared.
func (s *Schema) Writable() []string {
	if s.Fillable == nil {
		return nil
	}
	out := slices.Clone(s.Fillable)
	for _, c := range s.Cascade {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// IsCascade reports whether field is routed through cascade persistence.
func (s *Schema) IsCascade(field string) bool {
	return slices.Contains(s.Cascade, field)
}

// LocalKeyOf returns the parent column a one-to-many relation references.
func (r *Relation) LocalKeyOf(parent *Schema) string {
	if r.LocalKey != "" {
		return r.LocalKey
	}
	return parent.PrimaryKey
}
