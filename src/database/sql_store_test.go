package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"equitybot/src/broker"
	"equitybot/src/market"
	"equitybot/src/session"
	"equitybot/src/tracking"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var barTime = time.Date(2024, 3, 6, 14, 30, 0, 0, time.UTC)

func newMockStore(t *testing.T, d dialect) (*SQLStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &SQLStore{db: db, dialect: d}, mock
}

func TestSQLStore_SaveBars(t *testing.T) {
	store, mock := newMockStore(t, postgresDialect{})
	bar := market.NewTestBar(barTime, 10, 10.5, 9.8, 10.2, 5000)

	t.Run("successful save", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectPrepare("INSERT INTO bars").ExpectExec().
			WithArgs("AAPL", barTime.UnixMilli(), bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, bar.VWAP).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := store.SaveBar(context.Background(), "AAPL", bar)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty bars", func(t *testing.T) {
		assert.NoError(t, store.SaveBars(context.Background(), "AAPL", nil))
	})

	t.Run("database error", func(t *testing.T) {
		mock.ExpectBegin().WillReturnError(sql.ErrConnDone)

		err := store.SaveBar(context.Background(), "AAPL", bar)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to begin transaction")
	})
}

func TestSQLStore_GetBars(t *testing.T) {
	cols := []string{"open_time", "open_price", "high_price", "low_price", "close_price", "volume", "vwap"}

	for _, d := range []dialect{postgresDialect{}, sqliteDialect{}} {
		t.Run(d.name(), func(t *testing.T) {
			store, mock := newMockStore(t, d)
			asOf := barTime.Add(time.Minute)

			// 数据库按时间倒序返回
			rows := sqlmock.NewRows(cols).
				AddRow(asOf.UnixMilli(), "10.20", "10.60", "10.10", "10.50", "6000", "10.40").
				AddRow(barTime.UnixMilli(), "10.00", "10.50", "9.80", "10.20", "5000", "10.17")
			mock.ExpectQuery("SELECT (.+) FROM bars").
				WithArgs("AAPL", asOf.UnixMilli(), 2).
				WillReturnRows(rows)

			w, err := store.GetBars(context.Background(), "AAPL", asOf, 2)
			require.NoError(t, err)
			require.Len(t, w, 2)
			assert.Equal(t, barTime, w[0].Time)
			assert.Equal(t, asOf, w[1].Time)
			assert.True(t, w[1].Close.Equal(decimal.RequireFromString("10.5")))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLStore_LatestBarTime(t *testing.T) {
	store, mock := newMockStore(t, postgresDialect{})

	t.Run("has data", func(t *testing.T) {
		mock.ExpectQuery("SELECT MAX\\(open_time\\) FROM bars").
			WithArgs("AAPL").
			WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(barTime.UnixMilli()))

		latest, err := store.LatestBarTime(context.Background(), "AAPL")
		assert.NoError(t, err)
		assert.Equal(t, barTime, latest)
	})

	t.Run("no data", func(t *testing.T) {
		mock.ExpectQuery("SELECT MAX\\(open_time\\) FROM bars").
			WithArgs("AAPL").
			WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

		latest, err := store.LatestBarTime(context.Background(), "AAPL")
		assert.NoError(t, err)
		assert.True(t, latest.IsZero())
	})
}

func TestSQLStore_OrderPositionTrade(t *testing.T) {
	store, mock := newMockStore(t, postgresDialect{})
	ctx := context.Background()

	order := &tracking.Order{
		ID: "42", Symbol: "AAPL", Side: broker.OrderSideBuy,
		Quantity: decimal.NewFromInt(100), Price: decimal.NewFromInt(10),
		Status: broker.StatusPending, CreatedAt: barTime, UpdatedAt: barTime,
	}
	mock.ExpectExec("INSERT INTO orders").
		WithArgs("42", "AAPL", "BUY", order.Quantity, order.Price, order.FilledQty, order.AvgPrice,
			"PENDING", "", barTime.UnixMilli(), barTime.UnixMilli()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, store.SaveOrder(ctx, order))

	pos := &tracking.Position{Symbol: "AAPL", OrderIDs: []string{"42"}, BuyTime: barTime}
	pos.Accumulate("42", decimal.NewFromInt(100), decimal.NewFromInt(10))
	mock.ExpectExec("INSERT INTO positions").
		WithArgs("AAPL", "", sqlmock.AnyArg(), pos.TotalCost, pos.Quantity, 0, 0,
			pos.StopLossPrice, barTime.UnixMilli(), "", pos.Realized, pos.BoughtQty, pos.BoughtCost, pos.SoldQty, pos.Proceeds).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, store.SavePosition(ctx, pos))

	mock.ExpectExec("INSERT INTO trades").
		WithArgs("AAPL-1", "AAPL", "", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			int64(0), int64(0), sqlmock.AnyArg(), sqlmock.AnyArg(), "", "").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, store.SaveTrade(ctx, &tracking.Trade{ID: "AAPL-1", Symbol: "AAPL"}))

	mock.ExpectExec("DELETE FROM positions").
		WithArgs("AAPL").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.DeletePosition(ctx, "AAPL"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_LoadPositions(t *testing.T) {
	cols := []string{"symbol", "style", "order_ids", "total_cost", "quantity", "units", "target_units",
		"stop_loss_price", "buy_time", "setup", "realized", "bought_qty", "bought_cost", "sold_qty", "proceeds"}

	t.Run("postgres array", func(t *testing.T) {
		store, mock := newMockStore(t, postgresDialect{})
		mock.ExpectQuery("SELECT (.+) FROM positions").
			WillReturnRows(sqlmock.NewRows(cols).AddRow(
				"AAPL", "momentum", "{42,43}", "1000", "100", 1, 2,
				"9.5", barTime.UnixMilli(), nil, "0", "100", "1000", "0", "0"))

		positions, err := store.LoadPositions(context.Background())
		require.NoError(t, err)
		require.Len(t, positions, 1)
		assert.Equal(t, []string{"42", "43"}, positions[0].OrderIDs)
		assert.Equal(t, "momentum", positions[0].Style)
		assert.Equal(t, "", positions[0].Setup)
		assert.True(t, positions[0].AvgCost().Equal(decimal.NewFromInt(10)))
	})

	t.Run("sqlite comma list", func(t *testing.T) {
		store, mock := newMockStore(t, sqliteDialect{})
		mock.ExpectQuery("SELECT (.+) FROM positions").
			WillReturnRows(sqlmock.NewRows(cols).AddRow(
				"AAPL", "momentum", "42,43", "1000", "100", 1, 2,
				"9.5", barTime.UnixMilli(), tracking.SetupFailedToSell, "0", "100", "1000", "0", "0"))

		positions, err := store.LoadPositions(context.Background())
		require.NoError(t, err)
		require.Len(t, positions, 1)
		assert.Equal(t, []string{"42", "43"}, positions[0].OrderIDs)
		assert.Equal(t, tracking.SetupFailedToSell, positions[0].Setup)
		assert.Equal(t, barTime, positions[0].BuyTime)
	})
}

func TestSQLStore_SaveSessionLogAndStats(t *testing.T) {
	store, mock := newMockStore(t, sqliteDialect{})
	ctx := context.Background()

	entries := []session.Entry{
		{Time: barTime, Symbol: "AAPL", Event: "reject", Detail: "below vwap"},
		{Time: barTime, Symbol: "AAPL", Event: "submit_buy", Detail: "qty=100"},
	}
	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO session_logs")
	prep.ExpectExec().WithArgs("s1", barTime.UnixMilli(), "AAPL", "reject", "below vwap").
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs("s1", barTime.UnixMilli(), "AAPL", "submit_buy", "qty=100").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()
	require.NoError(t, store.SaveSessionLog(ctx, "s1", entries))

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO tracking_stats").ExpectExec().
		WithArgs("AAPL", 0, 2, 1, 2, int64(0), "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	require.NoError(t, store.SaveStats(ctx, []*tracking.Stat{{Symbol: "AAPL", LoseStreak: 2, Wins: 1, Losses: 2}}))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDialect_Rebind(t *testing.T) {
	q := "SELECT * FROM bars WHERE symbol = $1 AND open_time <= $2"
	assert.Equal(t, q, postgresDialect{}.rebind(q))
	assert.Equal(t, "SELECT * FROM bars WHERE symbol = ?1 AND open_time <= ?2", sqliteDialect{}.rebind(q))

	v, err := sqliteDialect{}.list([]string{"1", "2"}).Value()
	require.NoError(t, err)
	assert.Equal(t, "1,2", v)

	var ids []string
	dest := sqliteDialect{}.listDest(&ids).(sql.Scanner)
	require.NoError(t, dest.Scan([]byte("7,8")))
	assert.Equal(t, []string{"7", "8"}, ids)
	require.NoError(t, dest.Scan(nil))
	assert.Nil(t, ids)
}

func TestSQLStore_Close(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store := &SQLStore{db: db, dialect: postgresDialect{}}
	mock.ExpectClose()

	assert.NoError(t, store.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
