package cachify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// sqlStore keeps cache entries and lock records in one table: cache rows
// carry a value (v), lock rows carry a holder token (tk), and both carry an
// expiry in unix millis (ea). Acquisition leans on the primary-key
// constraint and release on a token-conditional DELETE, so both are atomic
// at the database.
type sqlStore struct {
	db         *sql.DB
	table      string
	driverName string
	defaultTTL time.Duration

	getStmt           *sql.Stmt
	upsertStmt        *sql.Stmt
	deleteStmt        *sql.Stmt
	acquireInsertStmt *sql.Stmt
	acquireReuseStmt  *sql.Stmt
	releaseStmt       *sql.Stmt
}

var sqlIdentPartRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func newSQLStore(cfg StoreConfig) (Store, error) {
	if cfg.SQLDriverName == "" || cfg.SQLDSN == "" {
		return nil, errors.New("sql driver requires driver name and dsn")
	}
	db, err := sql.Open(cfg.SQLDriverName, cfg.SQLDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	table := cfg.SQLTable
	if table == "" {
		table = "cachify_entries"
	}
	if err := validateSQLTableName(table); err != nil {
		return nil, err
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	s := &sqlStore{
		db:         db,
		table:      table,
		driverName: cfg.SQLDriverName,
		defaultTTL: ttl,
	}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	if err := s.prepareStatements(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) Driver() Driver { return DriverSQL }

func (s *sqlStore) ensureSchema() error {
	var stmt string
	switch s.driverName {
	case "postgres", "pgx":
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			k TEXT PRIMARY KEY,
			v BYTEA,
			tk TEXT,
			ea BIGINT NOT NULL
		)`, s.table)
	case "mysql":
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			k VARBINARY(255) PRIMARY KEY,
			v LONGBLOB,
			tk VARCHAR(64),
			ea BIGINT NOT NULL
		) ENGINE=InnoDB`, s.table)
	default: // sqlite
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			k TEXT PRIMARY KEY,
			v BLOB,
			tk TEXT,
			ea INTEGER NOT NULL
		)`, s.table)
	}
	_, err := s.db.Exec(stmt)
	return err
}

func (s *sqlStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	var exp int64
	err := s.getStmt.QueryRowContext(ctx, key).Scan(&v, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if time.Now().UnixMilli() > exp {
		_ = s.Delete(ctx, key)
		return nil, false, nil
	}
	if v == nil {
		// Lock row under this key, not a readable cache value.
		return nil, false, nil
	}
	return cloneBytes(v), true, nil
}

func (s *sqlStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	exp := time.Now().Add(ttl).UnixMilli()
	_, err := s.upsertStmt.ExecContext(ctx, key, cloneBytes(value), exp, cloneBytes(value), exp)
	return err
}

func (s *sqlStore) Delete(ctx context.Context, key string) error {
	_, err := s.deleteStmt.ExecContext(ctx, key)
	return err
}

func (s *sqlStore) TryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	now := time.Now().UnixMilli()
	exp := time.UnixMilli(now).Add(ttl).UnixMilli()
	_, err := s.acquireInsertStmt.ExecContext(ctx, key, token, exp)
	if err == nil {
		return true, nil
	}
	if !isDuplicateErr(err, s.driverName) {
		return false, err
	}
	// The key exists; reclaim it only when logically expired, so behavior
	// matches backends that expire keys eagerly.
	res, err := s.acquireReuseStmt.ExecContext(ctx, token, exp, key, now)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *sqlStore) Release(ctx context.Context, key, token string) (bool, error) {
	res, err := s.releaseStmt.ExecContext(ctx, key, token)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *sqlStore) prepareStatements() error {
	var err error
	if s.getStmt, err = s.db.Prepare(s.getSQL()); err != nil {
		return err
	}
	if s.upsertStmt, err = s.db.Prepare(s.upsertSQL()); err != nil {
		return err
	}
	if s.deleteStmt, err = s.db.Prepare(s.deleteSQL()); err != nil {
		return err
	}
	if s.acquireInsertStmt, err = s.db.Prepare(s.acquireInsertSQL()); err != nil {
		return err
	}
	if s.acquireReuseStmt, err = s.db.Prepare(s.acquireReuseSQL()); err != nil {
		return err
	}
	if s.releaseStmt, err = s.db.Prepare(s.releaseSQL()); err != nil {
		return err
	}
	return nil
}

func (s *sqlStore) getSQL() string {
	return fmt.Sprintf("SELECT v, ea FROM %s WHERE k = %s", s.table, s.ph(1))
}

func (s *sqlStore) upsertSQL() string {
	switch s.driverName {
	case "postgres", "pgx":
		return fmt.Sprintf(
			"INSERT INTO %s (k, v, tk, ea) VALUES (%s, %s, NULL, %s) ON CONFLICT (k) DO UPDATE SET v = %s, tk = NULL, ea = %s",
			s.table, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5))
	case "mysql":
		return fmt.Sprintf(
			"INSERT INTO %s (k, v, tk, ea) VALUES (%s, %s, NULL, %s) ON DUPLICATE KEY UPDATE v = %s, tk = NULL, ea = %s",
			s.table, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5))
	default: // sqlite
		return fmt.Sprintf(
			"INSERT INTO %s (k, v, tk, ea) VALUES (%s, %s, NULL, %s) ON CONFLICT(k) DO UPDATE SET v = %s, tk = NULL, ea = %s",
			s.table, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5))
	}
}

func (s *sqlStore) deleteSQL() string {
	return fmt.Sprintf("DELETE FROM %s WHERE k = %s", s.table, s.ph(1))
}

func (s *sqlStore) acquireInsertSQL() string {
	return fmt.Sprintf("INSERT INTO %s (k, v, tk, ea) VALUES (%s, NULL, %s, %s)",
		s.table, s.ph(1), s.ph(2), s.ph(3))
}

func (s *sqlStore) acquireReuseSQL() string {
	return fmt.Sprintf("UPDATE %s SET v = NULL, tk = %s, ea = %s WHERE k = %s AND ea < %s",
		s.table, s.ph(1), s.ph(2), s.ph(3), s.ph(4))
}

func (s *sqlStore) releaseSQL() string {
	return fmt.Sprintf("DELETE FROM %s WHERE k = %s AND tk = %s",
		s.table, s.ph(1), s.ph(2))
}

// ph renders the i-th statement placeholder; postgres wants positional $n.
func (s *sqlStore) ph(i int) string {
	if s.driverName == "postgres" || s.driverName == "pgx" {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func isDuplicateErr(err error, driver string) bool {
	msg := err.Error()
	switch driver {
	case "postgres", "pgx":
		return strings.Contains(msg, "duplicate key value")
	case "mysql":
		return strings.Contains(msg, "Duplicate entry")
	default:
		return strings.Contains(msg, "UNIQUE constraint failed") ||
			strings.Contains(msg, "unique constraint")
	}
}

func validateSQLTableName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("sql table name is required")
	}
	for _, part := range strings.Split(name, ".") {
		if !sqlIdentPartRE.MatchString(part) {
			return fmt.Errorf("invalid sql table name %q", name)
		}
	}
	return nil
}
