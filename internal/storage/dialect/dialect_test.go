package dialect

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		dialectType DialectType
		wantName    string
		wantErr     bool
	}{
		{"sqlite", SQLite, "sqlite", false},
		{"postgres", Postgres, "postgres", false},
		{"mysql", DialectType("mysql"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.dialectType)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil && d.Name() != tt.wantName {
				t.Errorf("Name() = %v, want %v", d.Name(), tt.wantName)
			}
		})
	}
}

func TestFromDriverName(t *testing.T) {
	tests := []struct {
		driverName string
		wantName   string
		wantDriver string
		wantErr    bool
	}{
		{"sqlite", "sqlite", "sqlite", false},
		{"sqlite3", "sqlite", "sqlite", false},
		{"postgres", "postgres", "postgres", false},
		{"PostgreSQL", "postgres", "postgres", false},
		{"mysql", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.driverName, func(t *testing.T) {
			d, err := FromDriverName(tt.driverName)
			if (err != nil) != tt.wantErr {
				t.Errorf("FromDriverName() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				return
			}
			if d.Name() != tt.wantName {
				t.Errorf("Name() = %v, want %v", d.Name(), tt.wantName)
			}
			if d.DriverName() != tt.wantDriver {
				t.Errorf("DriverName() = %v, want %v", d.DriverName(), tt.wantDriver)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	query := "SELECT * FROM domains WHERE domain = ? AND tenant_id = ?"

	sqlite, _ := New(SQLite)
	if got := sqlite.Rebind(query); got != query {
		t.Errorf("sqlite Rebind() = %q, want unchanged", got)
	}

	pg, _ := New(Postgres)
	want := "SELECT * FROM domains WHERE domain = $1 AND tenant_id = $2"
	if got := pg.Rebind(query); got != want {
		t.Errorf("postgres Rebind() = %q, want %q", got, want)
	}
}

func TestTypes(t *testing.T) {
	sqlite, _ := New(SQLite)
	pg, _ := New(Postgres)

	if sqlite.BooleanType() != "INTEGER" || pg.BooleanType() != "BOOLEAN" {
		t.Errorf("BooleanType() = %q/%q", sqlite.BooleanType(), pg.BooleanType())
	}
	if len(sqlite.PragmaStatements()) == 0 {
		t.Error("sqlite PragmaStatements() should not be empty")
	}
	if pg.PragmaStatements() != nil {
		t.Error("postgres PragmaStatements() should be nil")
	}
}

func TestPostgresUniqueViolation(t *testing.T) {
	pg, _ := New(Postgres)

	wrapped := fmt.Errorf("insert domain: %w", &pq.Error{Code: "23505"})
	if !pg.IsUniqueViolation(wrapped) {
		t.Error("IsUniqueViolation() = false for 23505")
	}
	if pg.IsUniqueViolation(&pq.Error{Code: "23503"}) {
		t.Error("IsUniqueViolation() = true for foreign key violation")
	}
	if pg.IsUniqueViolation(errors.New("boom")) {
		t.Error("IsUniqueViolation() = true for plain error")
	}
}
