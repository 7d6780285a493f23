// Package migrate applies versioned SQL scripts read from an fs.FS and keeps
// track of them in a journal table. A version is the script name without its
// ".up.sql" / ".down.sql" suffix, e.g. "0001_audit_events".
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
)

const (
	defaultJournal     = "schema_migrations"
	defaultSeedJournal = "schema_seeds"

	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
	seedSuffix = ".sql"
)

// ErrNothingApplied is returned by Down when the journal is empty.
var ErrNothingApplied = errors.New("migrate: no applied versions")

// Manager runs schema scripts and optional seed scripts against db.
type Manager struct {
	db          *sql.DB
	scripts     fs.FS
	seeds       fs.FS
	journal     string
	seedJournal string
}

// Option configures a Manager.
type Option func(*Manager)

// WithJournal renames the table recording applied versions. Names that are not
// plain identifiers are ignored.
func WithJournal(table string) Option {
	return func(m *Manager) {
		if isIdent(table) {
			m.journal = table
		}
	}
}

// WithSeedJournal renames the table recording applied seeds.
func WithSeedJournal(table string) Option {
	return func(m *Manager) {
		if isIdent(table) {
			m.seedJournal = table
		}
	}
}

// WithSeeds sets where Seed reads its scripts from.
func WithSeeds(seeds fs.FS) Option {
	return func(m *Manager) { m.seeds = seeds }
}

// NewManager returns a Manager over the up/down scripts in scripts.
func NewManager(db *sql.DB, scripts fs.FS, opts ...Option) *Manager {
	m := &Manager{
		db:          db,
		scripts:     scripts,
		journal:     defaultJournal,
		seedJournal: defaultSeedJournal,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies every version missing from the journal, oldest first. Each version
// runs in its own transaction together with its journal entry.
func (m *Manager) Up(ctx context.Context) error {
	if err := m.prepare(ctx); err != nil {
		return err
	}
	done, err := m.applied(ctx, m.journal)
	if err != nil {
		return err
	}
	pending, err := scan(m.scripts, upSuffix)
	if err != nil {
		return err
	}
	for _, s := range pending {
		if slices.Contains(done, s.version) {
			continue
		}
		record := fmt.Sprintf(`insert into %s (version) values ($1)`, m.journal)
		if err := m.run(ctx, m.scripts, s.path, record, s.version); err != nil {
			return fmt.Errorf("migrate: up %s: %w", s.version, err)
		}
	}
	return nil
}

// Down reverts the most recently applied version.
func (m *Manager) Down(ctx context.Context) error {
	if err := m.prepare(ctx); err != nil {
		return err
	}
	done, err := m.applied(ctx, m.journal)
	if err != nil {
		return err
	}
	if len(done) == 0 {
		return ErrNothingApplied
	}
	latest := done[len(done)-1]
	reverts, err := scan(m.scripts, downSuffix)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(reverts, func(s script) bool { return s.version == latest })
	if i < 0 {
		return fmt.Errorf("migrate: no %s%s for applied version", latest, downSuffix)
	}
	forget := fmt.Sprintf(`delete from %s where version = $1`, m.journal)
	if err := m.run(ctx, m.scripts, reverts[i].path, forget, latest); err != nil {
		return fmt.Errorf("migrate: down %s: %w", latest, err)
	}
	return nil
}

// Status lists applied versions in the order they were applied.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	if err := m.prepare(ctx); err != nil {
		return nil, err
	}
	return m.applied(ctx, m.journal)
}

// Seed runs each seed script once. Without WithSeeds it does nothing.
func (m *Manager) Seed(ctx context.Context) error {
	if m.seeds == nil {
		return nil
	}
	if err := m.prepare(ctx); err != nil {
		return err
	}
	done, err := m.applied(ctx, m.seedJournal)
	if err != nil {
		return err
	}
	seeds, err := scan(m.seeds, seedSuffix)
	if err != nil {
		return err
	}
	for _, s := range seeds {
		if slices.Contains(done, s.version) {
			continue
		}
		record := fmt.Sprintf(`insert into %s (version) values ($1)`, m.seedJournal)
		if err := m.run(ctx, m.seeds, s.path, record, s.version); err != nil {
			return fmt.Errorf("migrate: seed %s: %w", s.version, err)
		}
	}
	return nil
}

func (m *Manager) prepare(ctx context.Context) error {
	for _, table := range []string{m.journal, m.seedJournal} {
		ddl := fmt.Sprintf(`create table if not exists %s (
			version text primary key,
			applied_at timestamptz not null default now()
		)`, table)
		if _, err := m.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("migrate: create %s: %w", table, err)
		}
	}
	return nil
}

func (m *Manager) applied(ctx context.Context, table string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select version from %s order by applied_at, version`, table))
	if err != nil {
		return nil, fmt.Errorf("migrate: read %s: %w", table, err)
	}
	defer rows.Close()
	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// run executes the script at name and then bookkeeping(version) in one transaction.
func (m *Manager) run(ctx context.Context, fsys fs.FS, name, bookkeeping, version string) error {
	src, err := fs.ReadFile(fsys, name)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range statements(string(src)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, version); err != nil {
		return err
	}
	return tx.Commit()
}

type script struct {
	version string
	path    string
}

// scan finds files ending in suffix anywhere under fsys, sorted by version.
func scan(fsys fs.FS, suffix string) ([]script, error) {
	if fsys == nil {
		return nil, nil
	}
	var found []script
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}
		found = append(found, script{version: strings.TrimSuffix(path.Base(p), suffix), path: p})
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("migrate: scan scripts: %w", err)
	}
	slices.SortFunc(found, func(a, b script) int { return strings.Compare(a.version, b.version) })
	return found, nil
}

// statements splits a script on semicolons that are outside quoted strings and
// "--" comments. Blank statements are dropped.
func statements(src string) []string {
	var (
		out     []string
		cur     strings.Builder
		quoted  bool
		comment bool
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case comment:
			if c == '\n' {
				comment = false
				cur.WriteByte(c)
			}
			continue
		case !quoted && c == '-' && i+1 < len(src) && src[i+1] == '-':
			comment = true
			continue
		case c == '\'':
			quoted = !quoted
		case c == ';' && !quoted:
			flush()
			continue
		}
		cur.WriteByte(c)
	}
	flush()
	return out
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
