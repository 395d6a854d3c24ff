package model_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jacentio/lattice/model"
	"github.com/jacentio/lattice/store"
)

func TestLoadSchema(t *testing.T) {
	s, err := model.LoadSchema(strings.NewReader(testSchema))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(s.Collections) != 4 {
		t.Errorf("expected 4 collections, got %d", len(s.Collections))
	}
	org := s.Collections["organizations"]
	if org.Table != "crm" {
		t.Errorf("expected table 'crm', got %q", org.Table)
	}
	rel := org.Relationships["contacts"]
	if rel.Target != "contacts" || rel.Cardinality != "many" || rel.Dependent != "destroy" {
		t.Errorf("unexpected relationship %+v", rel)
	}
}

func TestLoadSchema_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", ""},
		{"no collections", "collections: {}"},
		{"unknown key", "collections:\n  users:\n    primary: id\n"},
		{"undeclared target", "collections:\n  users:\n    relationships:\n      tags: {target: tags, cardinality: many}\n"},
		{"missing inverse", "collections:\n  users:\n    relationships:\n      tags: {target: tags, cardinality: many, inverse: users}\n  tags: {}\n"},
		{"short composite", "collections:\n  users:\n    composite_indexes: [[name]]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := model.LoadSchema(strings.NewReader(tt.yaml))
			if !errors.Is(err, store.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestLoadSchemaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	if err := os.WriteFile(path, []byte(testSchema), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := model.LoadSchemaFile(path); err != nil {
		t.Errorf("load file: %v", err)
	}
	if _, err := model.LoadSchemaFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSchema_RegistryRejectsBadCardinality(t *testing.T) {
	s, err := model.LoadSchema(strings.NewReader("collections:\n  users:\n    relationships:\n      tags: {target: tags, cardinality: lots}\n  tags: {}\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := s.Registry(); !errors.Is(err, store.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestSchema_TableSpecs(t *testing.T) {
	s, err := model.LoadSchema(strings.NewReader(testSchema + "    composite_indexes: [[label, color]]\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	specs, err := s.TableSpecs()
	if err != nil {
		t.Fatalf("table specs: %v", err)
	}

	got := make(map[string]store.TableSpec)
	var names []string
	for _, spec := range specs {
		got[spec.Name] = spec
		names = append(names, spec.Name)
	}
	want := "contacts_organizations,contacts_users,crm,tags,tags_users,users"
	if strings.Join(names, ",") != want {
		t.Fatalf("expected tables %s, got %v", want, names)
	}

	if idx := strings.Join(got["crm"].Indexes, ","); idx != "email,name" {
		t.Errorf("expected crm to merge indexes [email name], got %s", idx)
	}
	if idx := strings.Join(got["contacts_organizations"].Indexes, ","); idx != "contact,organization" {
		t.Errorf("expected one edge table index per role, got %s", idx)
	}
	if c := got["tags"].CompositeIndexes; len(c) != 1 || c[0] != [2]string{"label", "color"} {
		t.Errorf("expected composite index [label color], got %v", c)
	}
}

func TestSchema_Catalog(t *testing.T) {
	f := newFixture(t, nil)

	var names []string
	for _, m := range f.catalog.Models() {
		names = append(names, m.Name())
	}
	if strings.Join(names, ",") != "contacts,organizations,tags,users" {
		t.Errorf("unexpected models %v", names)
	}

	org := f.model(t, "organization")
	if org.Collection().TableName() != "crm" {
		t.Errorf("expected organizations in table 'crm', got %q", org.Collection().TableName())
	}

	_, err := f.catalog.Model("invoices")
	if !errors.Is(err, model.ErrUnknownCollection) {
		t.Errorf("expected ErrUnknownCollection, got %v", err)
	}
}
