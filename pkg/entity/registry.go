package entity

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
)

var ErrCollectionNotFound = errors.New("collection not found")

// ForeignKey is a single-column reference from one table to another.
type ForeignKey struct {
	Column           string
	ReferencedSchema string
	ReferencedTable  string
	ReferencedColumn string
}

// TableInfo is what an Introspector knows about a table.
type TableInfo struct {
	Columns     []string
	PrimaryKeys []string
	ForeignKeys []ForeignKey
}

// Introspector supplies table metadata from the store. Anything declared
// in a Definition takes precedence over introspected data.
type Introspector interface {
	Table(schema, table string) (TableInfo, bool)
}

// Registry maps collection names to schemas. Definitions and validators are
// fixed at construction; resolved schemas are cached on first use and never
// invalidated. It is safe for concurrent use.
type Registry struct {
	defs         map[string]Definition
	validators   map[string]Validator
	introspector Introspector

	mu    sync.RWMutex
	cache map[string]*Schema
}

type Option func(*Registry)

// WithIntrospector fills primary keys, column lists and one-to-many foreign
// keys the definitions leave out.
func WithIntrospector(i Introspector) Option {
	return func(r *Registry) {
		r.introspector = i
	}
}

// WithValidator installs a validator for a collection, replacing the
// required-fields validator built from its definition.
func WithValidator(collection string, v Validator) Option {
	return func(r *Registry) {
		r.validators[Normalize(collection)] = v
	}
}

// NewRegistry validates defs and returns a Registry serving them.
func NewRegistry(defs []Definition, opts ...Option) (*Registry, error) {
	r := &Registry{
		defs:       make(map[string]Definition, len(defs)),
		validators: make(map[string]Validator),
		cache:      make(map[string]*Schema),
	}
	for _, d := range defs {
		name := Normalize(d.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidDefinition)
		}
		if _, dup := r.defs[name]; dup {
			return nil, fmt.Errorf("%w: duplicate collection %q", ErrInvalidDefinition, name)
		}
		r.defs[name] = d
	}
	for _, d := range r.defs {
		if err := d.validate(r.defs); err != nil {
			return nil, err
		}
		if len(d.Required) > 0 {
			r.validators[Normalize(d.Name)] = RequiredFields(d.Required)
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Names returns the registered collection names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validator returns the validator registered for a collection, or nil.
func (r *Registry) Validator(collection string) Validator {
	return r.validators[Normalize(collection)]
}

// Resolve returns the schema for a collection name or URL segment.
func (r *Registry) Resolve(name string) (*Schema, error) {
	key := Normalize(name)

	r.mu.RLock()
	s, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	def, ok := r.defs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.cache[key]; ok {
		return s, nil
	}
	s, err := r.build(key, def)
	if err != nil {
		return nil, err
	}
	r.cache[key] = s
	return s, nil
}

func (r *Registry) build(name string, d Definition) (*Schema, error) {
	s := &Schema{
		Name:         name,
		Table:        tableOf(d),
		DBSchema:     dbSchemaOf(d),
		PrimaryKey:   d.PrimaryKey,
		Search:       slices.Clone(d.Search),
		Cascade:      slices.Clone(d.Cascade),
		CompositeKey: slices.Clone(d.CompositeKey),
		Columns:      slices.Clone(d.Columns),
	}
	if d.Fillable != nil {
		s.Fillable = slices.Clone(d.Fillable)
	}

	var info TableInfo
	var introspected bool
	if r.introspector != nil {
		info, introspected = r.introspector.Table(s.DBSchema, s.Table)
	}
	if introspected {
		if s.PrimaryKey == "" && len(info.PrimaryKeys) == 1 {
			s.PrimaryKey = info.PrimaryKeys[0]
		}
		if s.Columns == nil && len(info.Columns) > 0 {
			s.Columns = slices.Clone(info.Columns)
		}
	}
	if s.PrimaryKey == "" {
		s.PrimaryKey = "id"
	}

	for _, rd := range d.Relations {
		kind, err := parseRelationKind(rd.Kind)
		if err != nil {
			return nil, err
		}
		rel := &Relation{
			Name:            rd.Name,
			Kind:            kind,
			Related:         Normalize(rd.Related),
			ForeignKey:      rd.ForeignKey,
			LocalKey:        rd.LocalKey,
			CompositeKey:    slices.Clone(rd.CompositeKey),
			PivotTable:      rd.PivotTable,
			PivotForeignKey: rd.PivotForeignKey,
			PivotRelatedKey: rd.PivotRelatedKey,
		}
		related := r.defs[rel.Related]
		if len(rel.CompositeKey) == 0 {
			rel.CompositeKey = slices.Clone(related.CompositeKey)
		}
		if kind == OneToMany && rel.ForeignKey == "" {
			rel.ForeignKey = r.inferForeignKey(s, related)
			if rel.ForeignKey == "" {
				return nil, fmt.Errorf("%w: %s.%s: foreign key is not declared and cannot be inferred",
					ErrInvalidDefinition, name, rel.Name)
			}
		}
		s.Relations = append(s.Relations, rel)
	}
	return s, nil
}

// inferForeignKey finds the column on the related table that references the
// parent table.
func (r *Registry) inferForeignKey(parent *Schema, related Definition) string {
	if r.introspector == nil {
		return ""
	}
	info, ok := r.introspector.Table(dbSchemaOf(related), tableOf(related))
	if !ok {
		return ""
	}
	for _, fk := range info.ForeignKeys {
		if fk.ReferencedTable == parent.Table && (fk.ReferencedSchema == "" || fk.ReferencedSchema == parent.DBSchema) {
			return fk.Column
		}
	}
	return ""
}

func tableOf(d Definition) string {
	if d.Table != "" {
		return d.Table
	}
	return d.Name
}

func dbSchemaOf(d Definition) string {
	if d.Schema != "" {
		return d.Schema
	}
	return "public"
}
