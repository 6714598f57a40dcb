package engine

import (
	"context"
	"testing"
	"time"

	"equitybot/src/database"
	"equitybot/src/market"
	"equitybot/src/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarFeed_Window(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	require.NoError(t, store.SaveBars(ctx, "ABC", breakoutBars(1000)))
	clock := session.NewVirtualClock(start.Add(21 * time.Minute))
	feed := NewBarFeed(store, clock)

	t.Run("one minute", func(t *testing.T) {
		w, err := feed.Window(ctx, "ABC", 1, 10)
		require.NoError(t, err)
		assert.Len(t, w, 10)
		assert.True(t, w.Last().Time.Equal(clock.Now().Add(-time.Minute)))
	})

	t.Run("resampled", func(t *testing.T) {
		w, err := feed.Window(ctx, "ABC", 5, 4)
		require.NoError(t, err)
		// 20 根1分钟K线从 14:41 到 15:00，按5分钟边界分桶
		require.Len(t, w, 5)
		for _, b := range w {
			assert.Equal(t, 0, b.Time.Minute()%5)
		}
		assert.True(t, w.Last().Close.Equal(breakoutBars(1000)[20].Close))
	})

	t.Run("as of virtual clock", func(t *testing.T) {
		early := NewBarFeed(store, session.NewVirtualClock(start.Add(5*time.Minute)))
		w, err := early.Window(ctx, "ABC", 1, 40)
		require.NoError(t, err)
		assert.Len(t, w, 5)
	})

	t.Run("unknown symbol", func(t *testing.T) {
		_, err := feed.Window(ctx, "NONE", 1, 10)
		var dataErr *market.DataError
		require.ErrorAs(t, err, &dataErr)
		assert.ErrorIs(t, err, market.ErrNoBars)
	})
}

func TestBarFeed_OnlyClosedBars(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	require.NoError(t, store.SaveBars(ctx, "ABC", breakoutBars(1000)))
	breakout := start.Add(20 * time.Minute)

	for _, now := range []time.Time{breakout, breakout.Add(30 * time.Second), breakout.Add(59 * time.Second)} {
		w, err := NewBarFeed(store, session.NewVirtualClock(now)).Window(ctx, "ABC", 1, 30)
		require.NoError(t, err)
		for _, b := range w {
			assert.True(t, b.Time.Before(breakout), "bar %s visible at %s", b.Time, now)
		}
	}

	w, err := NewBarFeed(store, session.NewVirtualClock(breakout.Add(time.Minute))).Window(ctx, "ABC", 1, 30)
	require.NoError(t, err)
	assert.True(t, w.Last().Time.Equal(breakout))
}
