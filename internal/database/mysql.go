package database

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/docsmithhq/docsmith-agent/internal/config"
)

// MySQLDB backs docsmith with a MySQL server, selected via cfg.DSN.
type MySQLDB struct {
	engine
}

var mysqlDialect = dialect{
	name: "mysql",
	// MySQL keys the update on whatever unique constraint collided, so the
	// conflict columns are implicit.
	upsertClause: func(_, updateCols []string) string {
		pairs := make([]string, len(updateCols))
		for i, c := range updateCols {
			pairs[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
		}
		return "ON DUPLICATE KEY UPDATE " + strings.Join(pairs, ", ")
	},
	ledgerDDL: `CREATE TABLE IF NOT EXISTS schema_migrations (
		id         INT          NOT NULL AUTO_INCREMENT PRIMARY KEY,
		filename   VARCHAR(255) NOT NULL UNIQUE,
		applied_at VARCHAR(64)  NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	adaptDDL:    mysqlDDL,
	splitScript: true,
}

// NewMySQL opens a MySQL connection from cfg.DSN.
func NewMySQL(cfg config.DatabaseConfig) (*MySQLDB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mysql DSN is required when driver is mysql")
	}

	// TIMESTAMP columns scan into time.Time only with parseTime.
	dsn := cfg.DSN
	if !strings.Contains(dsn, "parseTime") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening mysql connection: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	m := &MySQLDB{engine{db: db, d: mysqlDialect}}
	if err := m.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("pinging mysql: %w", err)
	}
	return m, nil
}

var mysqlTextDefault = regexp.MustCompile(`TEXT\s+NOT NULL DEFAULT '[^']*'`)

// mysqlDDL rewrites the SQLite-flavoured migration text for MySQL.
func mysqlDDL(script string) string {
	script = strings.ReplaceAll(script, "AUTOINCREMENT", "AUTO_INCREMENT")
	script = strings.ReplaceAll(script, "INTEGER PRIMARY KEY AUTO_INCREMENT",
		"BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY")
	// MySQL forbids defaults on TEXT columns. Dropping them is safe because
	// inserts always carry every tagged column.
	script = mysqlTextDefault.ReplaceAllString(script, "TEXT NOT NULL")
	// MySQL has no IF NOT EXISTS for indexes; the ledger already guarantees
	// each migration runs once.
	return strings.ReplaceAll(script, "CREATE INDEX IF NOT EXISTS", "CREATE INDEX")
}
