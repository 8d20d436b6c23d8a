package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/rzpsarthak13/vaccinesurvey/internal/core"
	"github.com/rzpsarthak13/vaccinesurvey/internal/registry"
)

const (
	connectTimeout = 10 * time.Second

	// RowIndexColumn holds the position of each row in the published table.
	RowIndexColumn = "row_index"
)

// dialect captures the per-driver differences in generated SQL.
type dialect struct {
	driver      string
	placeholder func(n int) string
	quote       func(ident string) string
	types       map[core.Kind]string
	nativeDates bool
}

var dialects = map[string]dialect{
	"mysql": {
		driver:      "mysql",
		placeholder: func(int) string { return "?" },
		quote: func(ident string) string {
			return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
		},
		types: map[core.Kind]string{
			core.KindCategorical: "VARCHAR(255)",
			core.KindNumeric:     "DOUBLE",
			core.KindTemporal:    "DATE",
			core.KindText:        "TEXT",
		},
		nativeDates: true,
	},
	"postgres": {
		driver:      "postgres",
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
		quote:       pq.QuoteIdentifier,
		types: map[core.Kind]string{
			core.KindCategorical: "TEXT",
			core.KindNumeric:     "DOUBLE PRECISION",
			core.KindTemporal:    "DATE",
			core.KindText:        "TEXT",
		},
		nativeDates: true,
	},
	"sqlite": {
		driver:      "sqlite",
		placeholder: func(int) string { return "?" },
		quote: func(ident string) string {
			return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
		},
		types: map[core.Kind]string{
			core.KindCategorical: "TEXT",
			core.KindNumeric:     "REAL",
			core.KindTemporal:    "TEXT",
			core.KindText:        "TEXT",
		},
	},
}

// ErrSQLSinkClosed is returned when publishing to a closed SQL sink.
var ErrSQLSinkClosed = errors.New("sql sink is closed")

// SQL writes tables into a relational database, one row per record.
// Each Publish replaces the previous contents of the target table.
type SQL struct {
	db      *sql.DB
	dialect dialect
	table   string
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewSQL opens a connection pool for config and verifies it with a ping.
func NewSQL(config registry.InternalSQLConfig, logger *zap.Logger) (*SQL, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d, ok := dialects[config.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver: %s", config.Driver)
	}

	dsn := config.DSN
	if dsn == "" {
		dsn = buildDSN(config)
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	table := config.Table
	if table == "" {
		table = "vaccine_survey"
	}

	return &SQL{
		db:      db,
		dialect: d,
		table:   table,
		logger:  logger.Named("sql").With(zap.String("driver", d.driver), zap.String("table", table)),
	}, nil
}

// buildDSN assembles a connection string from the individual config fields.
func buildDSN(config registry.InternalSQLConfig) string {
	switch config.Driver {
	case "mysql":
		cfg := mysql.NewConfig()
		cfg.User = config.Username
		cfg.Passwd = config.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
		cfg.DBName = config.Database
		cfg.ParseTime = true
		cfg.Timeout = connectTimeout
		return cfg.FormatDSN()
	case "postgres":
		port := config.Port
		if port == 0 {
			port = 5432
		}
		sslMode := config.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			config.Host, port, config.Username, config.Password, config.Database, sslMode)
	default:
		if strings.Contains(config.Database, "?") {
			return config.Database
		}
		return config.Database + "?_pragma=busy_timeout(5000)"
	}
}

// DB returns the underlying connection pool.
func (s *SQL) DB() *sql.DB {
	return s.db
}

// TableName returns the target table.
func (s *SQL) TableName() string {
	return s.table
}

// Publish implements core.TableSink. The table is created on first use and
// its rows are replaced inside a single transaction.
func (s *SQL) Publish(ctx context.Context, t *core.Table) (err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSQLSinkClosed
	}
	if t == nil {
		return fmt.Errorf("table cannot be nil")
	}

	columns := append(t.Columns(), t.Metas()...)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Warn("rollback failed", zap.Error(rbErr))
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, s.createStatement(columns)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM "+s.dialect.quote(s.table)); err != nil {
		return fmt.Errorf("failed to clear table %s: %w", s.table, err)
	}

	stmt, err := tx.PrepareContext(ctx, s.insertStatement(columns))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	nData := len(t.Columns())
	for i := 0; i < t.Len(); i++ {
		args := make([]any, 0, len(columns)+1)
		args = append(args, i)
		row := t.Row(i)
		metaRow := t.MetaRow(i)
		for j, c := range columns {
			var v core.Value
			if j < nData {
				v = row[j]
			} else {
				v = metaRow[j-nData]
			}
			args = append(args, s.arg(c.Kind, v))
		}
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	s.logger.Info("table published", zap.String("schema", t.Name()), zap.Int("rows", t.Len()))
	return nil
}

func (s *SQL) createStatement(columns []core.Column) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(s.dialect.quote(s.table))
	b.WriteString(" (")
	b.WriteString(s.dialect.quote(RowIndexColumn))
	b.WriteString(" INTEGER NOT NULL")
	for _, c := range columns {
		b.WriteString(", ")
		b.WriteString(s.dialect.quote(c.Name))
		b.WriteString(" ")
		b.WriteString(s.dialect.types[c.Kind])
	}
	b.WriteString(")")
	return b.String()
}

func (s *SQL) insertStatement(columns []core.Column) string {
	names := make([]string, 0, len(columns)+1)
	params := make([]string, 0, len(columns)+1)
	names = append(names, s.dialect.quote(RowIndexColumn))
	params = append(params, s.dialect.placeholder(1))
	for i, c := range columns {
		names = append(names, s.dialect.quote(c.Name))
		params = append(params, s.dialect.placeholder(i+2))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.dialect.quote(s.table), strings.Join(names, ", "), strings.Join(params, ", "))
}

// arg converts a cell into a driver argument. Missing cells become NULL.
func (s *SQL) arg(kind core.Kind, v core.Value) any {
	if v.IsMissing() {
		return nil
	}
	switch kind {
	case core.KindNumeric:
		switch x := v.Interface().(type) {
		case float64:
			return x
		case float32:
			return float64(x)
		case int:
			return float64(x)
		case int64:
			return float64(x)
		}
		if f, err := strconv.ParseFloat(v.String(), 64); err == nil {
			return f
		}
		return nil
	case core.KindTemporal:
		if ts, ok := v.Interface().(time.Time); ok && s.dialect.nativeDates {
			return ts
		}
		return v.String()
	default:
		return v.String()
	}
}

// Close implements core.TableSink.
func (s *SQL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type sqlFactory struct{}

func (sqlFactory) Type() string { return "sql" }

func (sqlFactory) Create(config registry.InternalSinkConfig, logger *zap.Logger) (core.TableSink, error) {
	return NewSQL(config.SQL, logger)
}

func init() {
	RegisterFactory(sqlFactory{})
}
