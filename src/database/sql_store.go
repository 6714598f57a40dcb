package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"equitybot/src/broker"
	"equitybot/src/market"
	"equitybot/src/session"
	"equitybot/src/tracking"
)

// SQLStore 基于 database/sql 的存储，PostgreSQL 和 SQLite 共用
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

func (s *SQLStore) q(query string) string {
	return s.dialect.rebind(query)
}

// Dialect 方言名称
func (s *SQLStore) Dialect() string {
	return s.dialect.name()
}

// Migrate 建表
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", s.dialect.name(), err)
		}
	}
	return nil
}

// Close 关闭数据库连接
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// SaveBar 保存单根K线
func (s *SQLStore) SaveBar(ctx context.Context, symbol string, bar *market.Bar) error {
	return s.SaveBars(ctx, symbol, []*market.Bar{bar})
}

// SaveBars 批量保存K线
func (s *SQLStore) SaveBars(ctx context.Context, symbol string, bars []*market.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.q(`
		INSERT INTO bars (
			symbol, open_time, open_price, high_price, low_price, close_price, volume, vwap
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, open_time)
		DO UPDATE SET
			open_price = EXCLUDED.open_price,
			high_price = EXCLUDED.high_price,
			low_price = EXCLUDED.low_price,
			close_price = EXCLUDED.close_price,
			volume = EXCLUDED.volume,
			vwap = EXCLUDED.vwap
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, bar := range bars {
		_, err = stmt.ExecContext(ctx,
			symbol, bar.Time.UnixMilli(),
			bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, bar.VWAP,
		)
		if err != nil {
			return fmt.Errorf("failed to insert bar: %w", err)
		}
	}

	return tx.Commit()
}

func scanBars(rows *sql.Rows) (market.Window, error) {
	var w market.Window
	for rows.Next() {
		var openTime int64
		bar := &market.Bar{}
		if err := rows.Scan(&openTime, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume, &bar.VWAP); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		bar.Time = fromMillis(openTime)
		w = append(w, bar)
	}
	return w, rows.Err()
}

// GetBars 截至 asOf 的最近 count 根
func (s *SQLStore) GetBars(ctx context.Context, symbol string, asOf time.Time, count int) (market.Window, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT open_time, open_price, high_price, low_price, close_price, volume, vwap
		FROM bars
		WHERE symbol = $1 AND open_time <= $2
		ORDER BY open_time DESC
		LIMIT $3
	`), symbol, asOf.UnixMilli(), count)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	w, err := scanBars(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(w)-1; i < j; i, j = i+1, j-1 {
		w[i], w[j] = w[j], w[i]
	}
	return w, nil
}

// GetBarsInRange [start, end) 内的K线
func (s *SQLStore) GetBarsInRange(ctx context.Context, symbol string, start, end time.Time) (market.Window, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT open_time, open_price, high_price, low_price, close_price, volume, vwap
		FROM bars
		WHERE symbol = $1 AND open_time >= $2 AND open_time < $3
		ORDER BY open_time ASC
	`), symbol, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// LatestBarTime 最新K线时间
func (s *SQLStore) LatestBarTime(ctx context.Context, symbol string) (time.Time, error) {
	var openTime sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		s.q("SELECT MAX(open_time) FROM bars WHERE symbol = $1"),
		symbol,
	).Scan(&openTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest bar time: %w", err)
	}
	if !openTime.Valid {
		return time.Time{}, nil
	}
	return fromMillis(openTime.Int64), nil
}

// ListSymbols 有K线的标的
func (s *SQLStore) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT symbol FROM bars ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}

// SaveOrder 按订单号更新或插入
func (s *SQLStore) SaveOrder(ctx context.Context, order *tracking.Order) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO orders (
			id, symbol, side, quantity, price, filled_qty, avg_price, status, reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id)
		DO UPDATE SET
			filled_qty = EXCLUDED.filled_qty,
			avg_price = EXCLUDED.avg_price,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`),
		order.ID, order.Symbol, string(order.Side), order.Quantity, order.Price,
		order.FilledQty, order.AvgPrice, string(order.Status), order.Reason,
		toMillis(order.CreatedAt), toMillis(order.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save order %s: %w", order.ID, err)
	}
	return nil
}

// SavePosition 按标的更新或插入
func (s *SQLStore) SavePosition(ctx context.Context, p *tracking.Position) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO positions (
			symbol, style, order_ids, total_cost, quantity, units, target_units,
			stop_loss_price, buy_time, setup, realized, bought_qty, bought_cost, sold_qty, proceeds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (symbol)
		DO UPDATE SET
			style = EXCLUDED.style,
			order_ids = EXCLUDED.order_ids,
			total_cost = EXCLUDED.total_cost,
			quantity = EXCLUDED.quantity,
			units = EXCLUDED.units,
			target_units = EXCLUDED.target_units,
			stop_loss_price = EXCLUDED.stop_loss_price,
			buy_time = EXCLUDED.buy_time,
			setup = EXCLUDED.setup,
			realized = EXCLUDED.realized,
			bought_qty = EXCLUDED.bought_qty,
			bought_cost = EXCLUDED.bought_cost,
			sold_qty = EXCLUDED.sold_qty,
			proceeds = EXCLUDED.proceeds
	`),
		p.Symbol, p.Style, s.dialect.list(p.OrderIDs), p.TotalCost, p.Quantity, p.Units, p.TargetUnits,
		p.StopLossPrice, toMillis(p.BuyTime), p.Setup, p.Realized, p.BoughtQty, p.BoughtCost, p.SoldQty, p.Proceeds,
	)
	if err != nil {
		return fmt.Errorf("failed to save position %s: %w", p.Symbol, err)
	}
	return nil
}

// DeletePosition 删除持仓，不存在时不报错
func (s *SQLStore) DeletePosition(ctx context.Context, symbol string) error {
	_, err := s.db.ExecContext(ctx, s.q("DELETE FROM positions WHERE symbol = $1"), symbol)
	if err != nil {
		return fmt.Errorf("failed to delete position %s: %w", symbol, err)
	}
	return nil
}

// LoadPositions 启动时恢复持仓
func (s *SQLStore) LoadPositions(ctx context.Context) ([]*tracking.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, style, order_ids, total_cost, quantity, units, target_units,
		       stop_loss_price, buy_time, setup, realized, bought_qty, bought_cost, sold_qty, proceeds
		FROM positions
		ORDER BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []*tracking.Position
	for rows.Next() {
		p := &tracking.Position{}
		var buyTime int64
		var style, setup sql.NullString
		err := rows.Scan(
			&p.Symbol, &style, s.dialect.listDest(&p.OrderIDs), &p.TotalCost, &p.Quantity, &p.Units, &p.TargetUnits,
			&p.StopLossPrice, &buyTime, &setup, &p.Realized, &p.BoughtQty, &p.BoughtCost, &p.SoldQty, &p.Proceeds,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		p.Style = style.String
		p.Setup = setup.String
		p.BuyTime = fromMillis(buyTime)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// SaveTrade 交易记录只写一次
func (s *SQLStore) SaveTrade(ctx context.Context, t *tracking.Trade) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO trades (
			id, symbol, style, order_ids, quantity, buy_price, sell_price,
			buy_time, sell_time, pnl, pnl_rate, setup, reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`),
		t.ID, t.Symbol, t.Style, s.dialect.list(t.OrderIDs), t.Quantity, t.BuyPrice, t.SellPrice,
		toMillis(t.BuyTime), toMillis(t.SellTime), t.PnL, t.PnLRate, t.Setup, t.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to save trade %s: %w", t.ID, err)
	}
	return nil
}

// SaveSessionLog 批量写会话日志
func (s *SQLStore) SaveSessionLog(ctx context.Context, sessionID string, entries []session.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.q(`
		INSERT INTO session_logs (session_id, log_time, symbol, event, detail)
		VALUES ($1, $2, $3, $4, $5)
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, sessionID, toMillis(e.Time), e.Symbol, e.Event, e.Detail); err != nil {
			return fmt.Errorf("failed to insert session log: %w", err)
		}
	}
	return tx.Commit()
}

// SaveStats 批量更新标的统计
func (s *SQLStore) SaveStats(ctx context.Context, stats []*tracking.Stat) error {
	if len(stats) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.q(`
		INSERT INTO tracking_stats (
			symbol, win_streak, lose_streak, wins, losses, blacklist_until, sector, free_float, turnover
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol)
		DO UPDATE SET
			win_streak = EXCLUDED.win_streak,
			lose_streak = EXCLUDED.lose_streak,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			blacklist_until = EXCLUDED.blacklist_until,
			sector = EXCLUDED.sector,
			free_float = EXCLUDED.free_float,
			turnover = EXCLUDED.turnover
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, st := range stats {
		_, err := stmt.ExecContext(ctx,
			st.Symbol, st.WinStreak, st.LoseStreak, st.Wins, st.Losses,
			toMillis(st.BlacklistUntil), st.Sector, st.FreeFloat, st.Turnover,
		)
		if err != nil {
			return fmt.Errorf("failed to save stat %s: %w", st.Symbol, err)
		}
	}
	return tx.Commit()
}

// LoadStats 读取标的统计
func (s *SQLStore) LoadStats(ctx context.Context) ([]*tracking.Stat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, win_streak, lose_streak, wins, losses, blacklist_until, sector, free_float, turnover
		FROM tracking_stats
		ORDER BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	var stats []*tracking.Stat
	for rows.Next() {
		st := &tracking.Stat{}
		var until int64
		var sector sql.NullString
		err := rows.Scan(&st.Symbol, &st.WinStreak, &st.LoseStreak, &st.Wins, &st.Losses,
			&until, &sector, &st.FreeFloat, &st.Turnover)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stat: %w", err)
		}
		st.BlacklistUntil = fromMillis(until)
		st.Sector = sector.String
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// LoadOrders 按状态读取订单，status 为空时读取全部
func (s *SQLStore) LoadOrders(ctx context.Context, status broker.OrderStatus) ([]*tracking.Order, error) {
	query := `
		SELECT id, symbol, side, quantity, price, filled_qty, avg_price, status, reason, created_at, updated_at
		FROM orders
	`
	var args []interface{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*tracking.Order
	for rows.Next() {
		o := &tracking.Order{}
		var side, st string
		var reason sql.NullString
		var created, updated int64
		err := rows.Scan(&o.ID, &o.Symbol, &side, &o.Quantity, &o.Price, &o.FilledQty, &o.AvgPrice,
			&st, &reason, &created, &updated)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.Side = broker.OrderSide(side)
		o.Status = broker.OrderStatus(st)
		o.Reason = reason.String
		o.CreatedAt = fromMillis(created)
		o.UpdatedAt = fromMillis(updated)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
