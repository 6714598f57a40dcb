package database

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// dialect 屏蔽 PostgreSQL 与 SQLite 的差异
type dialect interface {
	name() string
	// rebind 把 $N 占位符换成方言写法
	rebind(query string) string
	// list 字符串列表入库
	list(values []string) driver.Valuer
	// listDest 字符串列表出库
	listDest(dst *[]string) interface{}
	schema() []string
}

type postgresDialect struct{}

func (postgresDialect) name() string { return "postgres" }

func (postgresDialect) rebind(query string) string { return query }

func (postgresDialect) list(values []string) driver.Valuer {
	if values == nil {
		values = []string{}
	}
	return pq.Array(values)
}

func (postgresDialect) listDest(dst *[]string) interface{} {
	return pq.Array(dst)
}

func (postgresDialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS bars (
			symbol      TEXT    NOT NULL,
			open_time   BIGINT  NOT NULL,
			open_price  NUMERIC NOT NULL,
			high_price  NUMERIC NOT NULL,
			low_price   NUMERIC NOT NULL,
			close_price NUMERIC NOT NULL,
			volume      NUMERIC NOT NULL,
			vwap        NUMERIC NOT NULL,
			PRIMARY KEY (symbol, open_time)
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id         TEXT PRIMARY KEY,
			symbol     TEXT    NOT NULL,
			side       TEXT    NOT NULL,
			quantity   NUMERIC NOT NULL,
			price      NUMERIC NOT NULL,
			filled_qty NUMERIC NOT NULL,
			avg_price  NUMERIC NOT NULL,
			status     TEXT    NOT NULL,
			reason     TEXT,
			created_at BIGINT  NOT NULL,
			updated_at BIGINT  NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS positions (
			symbol          TEXT PRIMARY KEY,
			style           TEXT,
			order_ids       TEXT[],
			total_cost      NUMERIC NOT NULL,
			quantity        NUMERIC NOT NULL,
			units           INTEGER NOT NULL,
			target_units    INTEGER NOT NULL,
			stop_loss_price NUMERIC NOT NULL,
			buy_time        BIGINT  NOT NULL,
			setup           TEXT,
			realized        NUMERIC NOT NULL,
			bought_qty      NUMERIC NOT NULL,
			bought_cost     NUMERIC NOT NULL,
			sold_qty        NUMERIC NOT NULL,
			proceeds        NUMERIC NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id         TEXT PRIMARY KEY,
			symbol     TEXT    NOT NULL,
			style      TEXT,
			order_ids  TEXT[],
			quantity   NUMERIC NOT NULL,
			buy_price  NUMERIC NOT NULL,
			sell_price NUMERIC NOT NULL,
			buy_time   BIGINT  NOT NULL,
			sell_time  BIGINT  NOT NULL,
			pnl        NUMERIC NOT NULL,
			pnl_rate   NUMERIC NOT NULL,
			setup      TEXT,
			reason     TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS session_logs (
			id         BIGSERIAL PRIMARY KEY,
			session_id TEXT   NOT NULL,
			log_time   BIGINT NOT NULL,
			symbol     TEXT,
			event      TEXT   NOT NULL,
			detail     TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS tracking_stats (
			symbol          TEXT PRIMARY KEY,
			win_streak      INTEGER NOT NULL,
			lose_streak     INTEGER NOT NULL,
			wins            INTEGER NOT NULL,
			losses          INTEGER NOT NULL,
			blacklist_until BIGINT  NOT NULL,
			sector          TEXT,
			free_float      NUMERIC NOT NULL,
			turnover        NUMERIC NOT NULL
		)`,
	}
}

type sqliteDialect struct{}

func (sqliteDialect) name() string { return "sqlite" }

// rebind SQLite 支持 ?NNN 编号参数
func (sqliteDialect) rebind(query string) string {
	return strings.ReplaceAll(query, "$", "?")
}

func (sqliteDialect) list(values []string) driver.Valuer {
	return commaList(values)
}

func (sqliteDialect) listDest(dst *[]string) interface{} {
	return (*commaListDest)(dst)
}

func (sqliteDialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS bars (
			symbol      TEXT    NOT NULL,
			open_time   INTEGER NOT NULL,
			open_price  TEXT    NOT NULL,
			high_price  TEXT    NOT NULL,
			low_price   TEXT    NOT NULL,
			close_price TEXT    NOT NULL,
			volume      TEXT    NOT NULL,
			vwap        TEXT    NOT NULL,
			PRIMARY KEY (symbol, open_time)
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id         TEXT PRIMARY KEY,
			symbol     TEXT    NOT NULL,
			side       TEXT    NOT NULL,
			quantity   TEXT    NOT NULL,
			price      TEXT    NOT NULL,
			filled_qty TEXT    NOT NULL,
			avg_price  TEXT    NOT NULL,
			status     TEXT    NOT NULL,
			reason     TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS positions (
			symbol          TEXT PRIMARY KEY,
			style           TEXT,
			order_ids       TEXT,
			total_cost      TEXT    NOT NULL,
			quantity        TEXT    NOT NULL,
			units           INTEGER NOT NULL,
			target_units    INTEGER NOT NULL,
			stop_loss_price TEXT    NOT NULL,
			buy_time        INTEGER NOT NULL,
			setup           TEXT,
			realized        TEXT    NOT NULL,
			bought_qty      TEXT    NOT NULL,
			bought_cost     TEXT    NOT NULL,
			sold_qty        TEXT    NOT NULL,
			proceeds        TEXT    NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id         TEXT PRIMARY KEY,
			symbol     TEXT    NOT NULL,
			style      TEXT,
			order_ids  TEXT,
			quantity   TEXT    NOT NULL,
			buy_price  TEXT    NOT NULL,
			sell_price TEXT    NOT NULL,
			buy_time   INTEGER NOT NULL,
			sell_time  INTEGER NOT NULL,
			pnl        TEXT    NOT NULL,
			pnl_rate   TEXT    NOT NULL,
			setup      TEXT,
			reason     TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS session_logs (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT    NOT NULL,
			log_time   INTEGER NOT NULL,
			symbol     TEXT,
			event      TEXT    NOT NULL,
			detail     TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS tracking_stats (
			symbol          TEXT PRIMARY KEY,
			win_streak      INTEGER NOT NULL,
			lose_streak     INTEGER NOT NULL,
			wins            INTEGER NOT NULL,
			losses          INTEGER NOT NULL,
			blacklist_until INTEGER NOT NULL,
			sector          TEXT,
			free_float      TEXT    NOT NULL,
			turnover        TEXT    NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_logs_session ON session_logs(session_id)`,
	}
}

// commaList SQLite 没有数组类型，用逗号拼接
type commaList []string

func (l commaList) Value() (driver.Value, error) {
	return strings.Join(l, ","), nil
}

type commaListDest []string

func (d *commaListDest) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case nil:
		*d = nil
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into string list", src)
	}
	if s == "" {
		*d = nil
		return nil
	}
	*d = strings.Split(s, ",")
	return nil
}
