package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/intake-engine/internal/domain"
	"github.com/tjfontaine/intake-engine/internal/storage"
	"github.com/tjfontaine/intake-engine/internal/storage/dialect"
)

// Store is a SQL implementation of TenantStore that supports SQLite and PostgreSQL.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
	now     func() time.Time
}

var _ storage.TenantStore = (*Store)(nil)

// Config holds database connection configuration
type Config struct {
	Driver string // Driver name: sqlite, postgres
	DSN    string // Data source name / connection string
}

// New creates a new SQL store with the specified configuration.
func New(cfg Config) (*Store, error) {
	d, err := dialect.FromDriverName(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if d.Name() == string(dialect.SQLite) {
		// Pragmas are per connection.
		db.SetMaxOpenConns(1)
	}

	// Run dialect-specific initialization (e.g., PRAGMA for SQLite)
	for _, stmt := range d.PragmaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db, dialect: d, now: func() time.Time { return time.Now().UTC() }}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSQLite creates a new SQLite store.
func NewSQLite(dbPath string) (*Store, error) {
	return New(Config{Driver: "sqlite", DSN: dbPath})
}

// DB returns the underlying sqlx.DB for advanced operations
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect returns the dialect being used
func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	ts := s.dialect.TimestampType()
	text := s.dialect.TextType()
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tenants (
id TEXT PRIMARY KEY,
name TEXT NOT NULL,
config %[1]s NOT NULL,
questions %[1]s NOT NULL,
created_at %[2]s NOT NULL,
updated_at %[2]s NOT NULL
)`, text, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS domains (
id TEXT PRIMARY KEY,
tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
domain TEXT NOT NULL UNIQUE,
is_primary %s NOT NULL,
created_at %s NOT NULL
)`, s.dialect.BooleanType(), ts),
		`CREATE INDEX IF NOT EXISTS idx_domains_tenant ON domains(tenant_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

type tenantRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Config    string    `db:"config"`
	Questions string    `db:"questions"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r tenantRow) toTenant() (*domain.Tenant, error) {
	t := &domain.Tenant{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
	if err := json.Unmarshal([]byte(r.Config), &t.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config of tenant %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Questions), &t.Questions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal questions of tenant %s: %w", r.ID, err)
	}
	return t, nil
}

type domainRow struct {
	ID        string    `db:"id"`
	TenantID  string    `db:"tenant_id"`
	Domain    string    `db:"domain"`
	IsPrimary bool      `db:"is_primary"`
	CreatedAt time.Time `db:"created_at"`
}

func (r domainRow) toDomain() domain.Domain {
	return domain.Domain{ID: r.ID, TenantID: r.TenantID, Domain: r.Domain, IsPrimary: r.IsPrimary, CreatedAt: r.CreatedAt}
}

type summaryRow struct {
	ID            string         `db:"id"`
	Name          string         `db:"name"`
	PrimaryDomain sql.NullString `db:"primary_domain"`
	CreatedAt     time.Time      `db:"created_at"`
}

func encodeTenant(t *domain.Tenant) (string, string, error) {
	cfg, err := json.Marshal(t.Config)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal config: %w", err)
	}
	questions := t.Questions
	if questions == nil {
		questions = []domain.Question{}
	}
	qs, err := json.Marshal(questions)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal questions: %w", err)
	}
	return string(cfg), string(qs), nil
}

const tenantColumns = `t.id, t.name, t.config, t.questions, t.created_at, t.updated_at`

func (s *Store) GetTenantByID(ctx context.Context, id string) (*domain.Tenant, error) {
	return s.getTenant(ctx, s.db, id)
}

func (s *Store) getTenant(ctx context.Context, q sqlx.QueryerContext, id string) (*domain.Tenant, error) {
	var row tenantRow
	err := sqlx.GetContext(ctx, q, &row, s.dialect.Rebind(`SELECT `+tenantColumns+` FROM tenants t WHERE t.id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tenant %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return row.toTenant()
}

func (s *Store) GetTenantByDomain(ctx context.Context, host string) (*domain.Tenant, error) {
	host = storage.NormalizeDomain(host)
	var row tenantRow
	query := s.dialect.Rebind(`SELECT ` + tenantColumns + ` FROM tenants t
JOIN domains d ON d.tenant_id = t.id
WHERE d.domain = ?`)
	err := s.db.GetContext(ctx, &row, query, host)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("domain %s: %w", host, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant by domain: %w", err)
	}
	return row.toTenant()
}

func (s *Store) ListTenants(ctx context.Context) ([]domain.TenantSummary, error) {
	var rows []summaryRow
	query := s.dialect.Rebind(`SELECT t.id, t.name, t.created_at, d.domain AS primary_domain
FROM tenants t
LEFT JOIN domains d ON d.tenant_id = t.id AND d.is_primary = ?
ORDER BY t.created_at ASC, t.id ASC`)
	if err := s.db.SelectContext(ctx, &rows, query, true); err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	out := make([]domain.TenantSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.TenantSummary{
			ID:            r.ID,
			Name:          r.Name,
			PrimaryDomain: r.PrimaryDomain.String,
			CreatedAt:     r.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) CreateTenant(ctx context.Context, t *domain.Tenant, primaryDomain string) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := s.now()
	t.CreatedAt = now
	t.UpdatedAt = now

	cfg, qs, err := encodeTenant(t)
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, s.dialect.Rebind(`INSERT INTO tenants (id, name, config, questions, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`), t.ID, t.Name, cfg, qs, t.CreatedAt, t.UpdatedAt)
		if err != nil {
			if s.dialect.IsUniqueViolation(err) {
				return fmt.Errorf("tenant %s: %w", t.ID, storage.ErrConflict)
			}
			return fmt.Errorf("failed to create tenant: %w", err)
		}
		if host := storage.NormalizeDomain(primaryDomain); host != "" {
			if _, err := s.insertDomain(ctx, tx, t.ID, host, true); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) UpdateTenant(ctx context.Context, id string, update storage.TenantUpdate) (*domain.Tenant, error) {
	var out *domain.Tenant
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		t, err := s.getTenant(ctx, tx, id)
		if err != nil {
			return err
		}
		if update.Name != nil {
			t.Name = *update.Name
		}
		if update.Config != nil {
			t.Config = *update.Config
		}
		if update.SetQuestions {
			t.Questions = update.Questions
		}
		t.UpdatedAt = s.now()

		cfg, qs, err := encodeTenant(t)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.dialect.Rebind(`UPDATE tenants SET name = ?, config = ?, questions = ?, updated_at = ? WHERE id = ?`),
			t.Name, cfg, qs, t.UpdatedAt, t.ID)
		if err != nil {
			return fmt.Errorf("failed to update tenant: %w", err)
		}
		out = t
		return nil
	})
	return out, err
}

func (s *Store) Domains(ctx context.Context, tenantID string) ([]domain.Domain, error) {
	var rows []domainRow
	query := s.dialect.Rebind(`SELECT id, tenant_id, domain, is_primary, created_at FROM domains
WHERE tenant_id = ?
ORDER BY is_primary DESC, created_at ASC, domain ASC`)
	if err := s.db.SelectContext(ctx, &rows, query, tenantID); err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	out := make([]domain.Domain, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) AddDomain(ctx context.Context, tenantID, host string, primary bool) (*domain.Domain, error) {
	host = storage.NormalizeDomain(host)
	if host == "" {
		return nil, fmt.Errorf("domain is required")
	}
	var out *domain.Domain
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.getTenant(ctx, tx, tenantID); err != nil {
			return err
		}
		if primary {
			if err := s.clearPrimary(ctx, tx, tenantID); err != nil {
				return err
			}
		}
		d, err := s.insertDomain(ctx, tx, tenantID, host, primary)
		out = d
		return err
	})
	return out, err
}

func (s *Store) insertDomain(ctx context.Context, tx *sqlx.Tx, tenantID, host string, primary bool) (*domain.Domain, error) {
	d := &domain.Domain{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Domain:    host,
		IsPrimary: primary,
		CreatedAt: s.now(),
	}
	_, err := tx.ExecContext(ctx, s.dialect.Rebind(`INSERT INTO domains (id, tenant_id, domain, is_primary, created_at)
VALUES (?, ?, ?, ?, ?)`), d.ID, d.TenantID, d.Domain, d.IsPrimary, d.CreatedAt)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return nil, fmt.Errorf("domain %s: %w", host, storage.ErrConflict)
		}
		return nil, fmt.Errorf("failed to add domain: %w", err)
	}
	return d, nil
}

func (s *Store) clearPrimary(ctx context.Context, tx *sqlx.Tx, tenantID string) error {
	_, err := tx.ExecContext(ctx, s.dialect.Rebind(`UPDATE domains SET is_primary = ? WHERE tenant_id = ?`), false, tenantID)
	if err != nil {
		return fmt.Errorf("failed to clear primary domain: %w", err)
	}
	return nil
}

func (s *Store) RemoveDomain(ctx context.Context, tenantID, host string) error {
	host = storage.NormalizeDomain(host)
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM domains WHERE tenant_id = ? AND domain = ?`), tenantID, host)
	if err != nil {
		return fmt.Errorf("failed to remove domain: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("domain %s: %w", host, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) SetPrimaryDomain(ctx context.Context, tenantID, host string) error {
	host = storage.NormalizeDomain(host)
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var count int
		err := tx.GetContext(ctx, &count, s.dialect.Rebind(`SELECT COUNT(*) FROM domains WHERE tenant_id = ? AND domain = ?`), tenantID, host)
		if err != nil {
			return fmt.Errorf("failed to look up domain: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("domain %s: %w", host, storage.ErrNotFound)
		}
		if err := s.clearPrimary(ctx, tx, tenantID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.dialect.Rebind(`UPDATE domains SET is_primary = ? WHERE tenant_id = ? AND domain = ?`), true, tenantID, host)
		if err != nil {
			return fmt.Errorf("failed to set primary domain: %w", err)
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
