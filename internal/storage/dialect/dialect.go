// Package dialect describes the SQL differences between the tenant store's backends.
package dialect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect represents a SQL database dialect.
type Dialect interface {
	// Name returns the dialect name ("sqlite" or "postgres")
	Name() string

	// DriverName returns the database/sql driver name to use
	DriverName() string

	// Rebind converts ? placeholders to the dialect's bind style.
	Rebind(query string) string

	BooleanType() string
	TimestampType() string
	TextType() string

	// PragmaStatements run once after the connection opens.
	PragmaStatements() []string

	// IsUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY constraint
	IsUniqueViolation(err error) bool
}

// DialectType represents supported database types
type DialectType string

const (
	SQLite   DialectType = "sqlite"
	Postgres DialectType = "postgres"
)

type spec struct {
	name     DialectType
	bind     int
	boolType string
	tsType   string
	pragmas  []string
	isUnique func(error) bool
}

func (s *spec) Name() string               { return string(s.name) }
func (s *spec) DriverName() string         { return string(s.name) }
func (s *spec) BooleanType() string        { return s.boolType }
func (s *spec) TimestampType() string      { return s.tsType }
func (s *spec) TextType() string           { return "TEXT" }
func (s *spec) PragmaStatements() []string { return s.pragmas }
func (s *spec) IsUniqueViolation(err error) bool {
	return err != nil && s.isUnique(err)
}

func (s *spec) Rebind(query string) string {
	return sqlx.Rebind(s.bind, query)
}

var dialects = map[DialectType]*spec{
	SQLite: {
		name:     SQLite,
		bind:     sqlx.QUESTION,
		boolType: "INTEGER",
		tsType:   "TIMESTAMP",
		pragmas: []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA synchronous=NORMAL",
			"PRAGMA foreign_keys=ON",
		},
		isUnique: sqliteUnique,
	},
	Postgres: {
		name:     Postgres,
		bind:     sqlx.DOLLAR,
		boolType: "BOOLEAN",
		tsType:   "TIMESTAMP WITH TIME ZONE",
		isUnique: postgresUnique,
	},
}

// New returns the dialect of the given type.
func New(dialectType DialectType) (Dialect, error) {
	d, ok := dialects[dialectType]
	if !ok {
		return nil, fmt.Errorf("unsupported dialect: %s", dialectType)
	}
	return d, nil
}

// FromDriverName maps a driver name or common alias to its dialect.
func FromDriverName(driverName string) (Dialect, error) {
	switch strings.ToLower(driverName) {
	case "sqlite", "sqlite3":
		return dialects[SQLite], nil
	case "postgres", "postgresql", "pq":
		return dialects[Postgres], nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driverName)
	}
}

func sqliteUnique(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// postgresUnique matches SQLSTATE 23505 (unique_violation).
func postgresUnique(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
