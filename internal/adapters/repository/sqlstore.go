package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SQL dialects understood by OpenSQL.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStore persists rows through gorm. Supabase is Postgres, so production
// uses the postgres dialect; SQLite serves local runs and tests.
type SQLStore struct {
	db         *gorm.DB
	dialect    string
	table      string
	milestones int
}

// OpenSQL connects to dsn with the given dialect and prepares the table.
func OpenSQL(ctx context.Context, dialect, dsn string, opts ...Option) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch dialect {
	case DialectPostgres:
		dialector = postgres.Open(dsn)
	case DialectSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrUnavailable, dialect, err)
	}
	return NewSQLStore(ctx, db, dialect, opts...)
}

// NewSQLStore wraps an open gorm handle and creates the participant table
// when it does not exist yet. Missing milestone columns are added.
func NewSQLStore(ctx context.Context, db *gorm.DB, dialect string, opts ...Option) (*SQLStore, error) {
	s := newSettings(opts)
	if !tableNameRe.MatchString(s.table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, s.table)
	}
	store := &SQLStore{db: db, dialect: dialect, table: s.table, milestones: s.milestones}
	if err := store.migrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)

	cols := make([]string, 0, s.milestones+2)
	cols = append(cols, ColumnWallet+" TEXT PRIMARY KEY")
	for i := 1; i <= s.milestones; i++ {
		cols = append(cols, MilestoneColumn(i)+" DOUBLE PRECISION")
	}
	cols = append(cols, ColumnTier+" DOUBLE PRECISION")
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (%s)`, s.table, strings.Join(cols, ", "))
	if err := db.Exec(ddl).Error; err != nil {
		return fmt.Errorf("%w: create table: %w", ErrUnavailable, err)
	}

	for i := 1; i <= s.milestones; i++ {
		col := MilestoneColumn(i)
		if db.Migrator().HasColumn(s.table, col) {
			continue
		}
		alter := fmt.Sprintf(`ALTER TABLE %q ADD COLUMN %s DOUBLE PRECISION`, s.table, col)
		if err := db.Exec(alter).Error; err != nil {
			return fmt.Errorf("%w: add column %s: %w", ErrUnavailable, col, err)
		}
	}
	return nil
}

// Find implements Store.
func (s *SQLStore) Find(ctx context.Context, wallet string) (row Row, err error) {
	defer func(start time.Time) { observe(s.dialect, "find", start, err) }(time.Now())

	var rows []map[string]any
	res := s.db.WithContext(ctx).
		Table(s.table).
		Where(ColumnWallet+" = ?", wallet).
		Limit(1).
		Find(&rows)
	if res.Error != nil {
		return Row{}, fmt.Errorf("%w: find: %w", ErrUnavailable, res.Error)
	}
	if len(rows) == 0 {
		return Row{}, ErrNotFound
	}
	return rowFromMap(rows[0], s.milestones), nil
}

// Insert implements Store.
func (s *SQLStore) Insert(ctx context.Context, row Row) (err error) {
	defer func(start time.Time) { observe(s.dialect, "insert", start, err) }(time.Now())

	res := s.db.WithContext(ctx).Table(s.table).Create(row.toMap())
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return ErrConflict
		}
		return fmt.Errorf("%w: insert: %w", ErrUnavailable, res.Error)
	}
	return nil
}

// Update implements Store.
func (s *SQLStore) Update(ctx context.Context, wallet, column string, value float64) (err error) {
	defer func(start time.Time) { observe(s.dialect, "update", start, err) }(time.Now())
	if _, err := ParseColumn(column, s.milestones); err != nil {
		return err
	}

	res := s.db.WithContext(ctx).
		Table(s.table).
		Where(ColumnWallet+" = ?", wallet).
		Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("%w: update: %w", ErrUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// isDuplicate reports a primary key violation. Not every dialector
// translates errors, so the driver message is checked as well.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "sqlstate 23505")
}
