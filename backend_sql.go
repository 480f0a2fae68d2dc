package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// sqlBackend stores values in <table> and list items in <table>_lists,
// ordered by an autoincrement id.
type sqlBackend struct {
	db         *sql.DB
	table      string
	listTable  string
	driverName string
	prefix     string
	getStmt    *sql.Stmt
	upsertStmt *sql.Stmt
	pushStmt   *sql.Stmt
	rangeStmt  *sql.Stmt
}

var sqlIdentPartRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func newSQLBackend(ctx context.Context, cfg Config) (Backend, error) {
	if cfg.SQLDriverName == "" || cfg.SQLDSN == "" {
		return nil, errors.New("sql driver requires driver name and dsn")
	}
	table := cfg.SQLTable
	if table == "" {
		table = defaultSQLTable
	}
	if err := validateSQLTableName(table); err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.SQLDriverName, cfg.SQLDSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &sqlBackend{
		db:         db,
		table:      table,
		listTable:  table + "_lists",
		driverName: cfg.SQLDriverName,
		prefix:     cfg.Prefix,
	}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.prepareStatements(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqlBackend) Driver() Driver { return DriverSQL }

func (s *sqlBackend) ensureSchema(ctx context.Context) error {
	var stmts []string
	switch s.dialect() {
	case "postgres":
		stmts = []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				k TEXT PRIMARY KEY,
				v BYTEA NOT NULL
			)`, s.table),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				k TEXT NOT NULL,
				v BYTEA NOT NULL
			)`, s.listTable),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_k ON %s (k, id)`, strings.ReplaceAll(s.listTable, ".", "_"), s.listTable),
		}
	case "mysql":
		stmts = []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				k VARBINARY(255) PRIMARY KEY,
				v LONGBLOB NOT NULL
			) ENGINE=InnoDB`, s.table),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				k VARBINARY(255) NOT NULL,
				v LONGBLOB NOT NULL,
				KEY k_id (k, id)
			) ENGINE=InnoDB`, s.listTable),
		}
	default:
		stmts = []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				k TEXT PRIMARY KEY,
				v BLOB NOT NULL
			)`, s.table),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				k TEXT NOT NULL,
				v BLOB NOT NULL
			)`, s.listTable),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_k ON %s (k, id)`, strings.ReplaceAll(s.listTable, ".", "_"), s.listTable),
		}
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqlBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := s.getStmt.QueryRowContext(ctx, s.cacheKey(key)).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cloneBytes(v), true, nil
}

func (s *sqlBackend) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.upsertStmt.ExecContext(ctx, s.cacheKey(key), value, value)
	return err
}

func (s *sqlBackend) Increment(ctx context.Context, key string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	selectSQL := s.getSQL()
	if s.dialect() != "sqlite" {
		selectSQL += " FOR UPDATE"
	}
	var v []byte
	err = tx.QueryRowContext(ctx, selectSQL, s.cacheKey(key)).Scan(&v)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	current := int64(0)
	if err == nil {
		current, err = strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cache key %q does not contain a numeric value", key)
		}
	}

	next := current + 1
	body := []byte(strconv.FormatInt(next, 10))
	upsertStmt := tx.StmtContext(ctx, s.upsertStmt)
	defer upsertStmt.Close()
	if _, err := upsertStmt.ExecContext(ctx, s.cacheKey(key), body, body); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *sqlBackend) Push(ctx context.Context, entries ...ListEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	pushStmt := tx.StmtContext(ctx, s.pushStmt)
	defer pushStmt.Close()
	for _, entry := range entries {
		value := entry.Value
		if value == nil {
			value = []byte{}
		}
		if _, err := pushStmt.ExecContext(ctx, s.cacheKey(entry.Key), value); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqlBackend) Range(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	rows, err := s.rangeStmt.QueryContext(ctx, s.cacheKey(key))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items [][]byte
	for rows.Next() {
		var v []byte
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		items = append(items, cloneBytes(v))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sliceRange(items, start, stop), nil
}

func (s *sqlBackend) Flush(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{s.table, s.listTable} {
		stmt := fmt.Sprintf("DELETE FROM %s", table)
		args := []any{}
		if s.prefix != "" {
			stmt += " WHERE k LIKE " + s.ph(1)
			args = append(args, escapeLike(s.prefix+":")+"%")
			if s.dialect() != "mysql" {
				stmt += ` ESCAPE '\'`
			}
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqlBackend) cacheKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *sqlBackend) dialect() string {
	switch s.driverName {
	case "postgres", "pgx":
		return "postgres"
	case "mysql":
		return "mysql"
	default:
		return "sqlite"
	}
}

func (s *sqlBackend) getSQL() string {
	return fmt.Sprintf("SELECT v FROM %s WHERE k = %s", s.table, s.ph(1))
}

func (s *sqlBackend) upsertSQL() string {
	// Placeholders must be positional for postgres/pgx.
	p1, p2, p3 := s.ph(1), s.ph(2), s.ph(3)
	switch s.dialect() {
	case "postgres":
		return fmt.Sprintf("INSERT INTO %s (k, v) VALUES (%s, %s) ON CONFLICT (k) DO UPDATE SET v = %s", s.table, p1, p2, p3)
	case "mysql":
		return fmt.Sprintf("INSERT INTO %s (k, v) VALUES (%s, %s) ON DUPLICATE KEY UPDATE v = %s", s.table, p1, p2, p3)
	default:
		return fmt.Sprintf("INSERT INTO %s (k, v) VALUES (%s, %s) ON CONFLICT(k) DO UPDATE SET v = %s", s.table, p1, p2, p3)
	}
}

func (s *sqlBackend) pushSQL() string {
	return fmt.Sprintf("INSERT INTO %s (k, v) VALUES (%s, %s)", s.listTable, s.ph(1), s.ph(2))
}

func (s *sqlBackend) rangeSQL() string {
	return fmt.Sprintf("SELECT v FROM %s WHERE k = %s ORDER BY id", s.listTable, s.ph(1))
}

func (s *sqlBackend) prepareStatements(ctx context.Context) error {
	var err error
	if s.getStmt, err = s.db.PrepareContext(ctx, s.getSQL()); err != nil {
		return err
	}
	if s.upsertStmt, err = s.db.PrepareContext(ctx, s.upsertSQL()); err != nil {
		return err
	}
	if s.pushStmt, err = s.db.PrepareContext(ctx, s.pushSQL()); err != nil {
		return err
	}
	if s.rangeStmt, err = s.db.PrepareContext(ctx, s.rangeSQL()); err != nil {
		return err
	}
	return nil
}

func (s *sqlBackend) ph(i int) string {
	if s.dialect() == "postgres" {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
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
