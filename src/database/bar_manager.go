package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"equitybot/src/market"

	"github.com/xpwu/go-log/log"
)

// BarSource 远端1分钟K线来源，broker.Broker 满足此接口
type BarSource interface {
	GetBars(ctx context.Context, symbol string, start, end time.Time, limit int) ([]*market.Bar, error)
}

// BarManager K线数据管理器：优先数据库，缺失时从券商补充
type BarManager struct {
	store  BarStore
	source BarSource
}

// NewBarManager source 为空时只读数据库
func NewBarManager(store BarStore, source BarSource) *BarManager {
	return &BarManager{store: store, source: source}
}

// Store 底层存储
func (bm *BarManager) Store() BarStore {
	return bm.store
}

// GetBars 截至 asOf 的最近 count 根，数据库不足或过旧时从网络补充
func (bm *BarManager) GetBars(ctx context.Context, symbol string, asOf time.Time, count int) (market.Window, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("BarManager")

	// 1. 先从数据库获取现有数据
	dbBars, err := bm.store.GetBars(ctx, symbol, asOf, count)
	if err != nil {
		logger.Error("从数据库获取K线失败", "symbol", symbol, "error", err)
	}

	// 2. 数据充足且最新一根不旧于一分钟
	if len(dbBars) >= count && asOf.Sub(dbBars.Last().Time) < time.Minute {
		return dbBars, nil
	}
	if bm.source == nil {
		if len(dbBars) == 0 {
			return nil, market.NewDataError(symbol, market.ErrNoBars)
		}
		return dbBars, nil
	}

	// 3. 数据不足，从网络补充
	start := asOf.Add(-time.Duration(count) * time.Minute)
	if last := dbBars.Last(); last != nil && len(dbBars) >= count {
		start = last.Time.Add(time.Minute)
	}
	logger.Debug("数据库数据不足，从网络补充", "symbol", symbol, "db_count", len(dbBars), "required", count)

	fetched, err := bm.source.GetBars(ctx, symbol, start, asOf.Add(time.Minute), count)
	if err != nil {
		logger.Error("从网络获取K线失败", "symbol", symbol, "error", err)
		// 网络也失败，返回数据库中的数据
		if len(dbBars) == 0 {
			return nil, market.NewDataError(symbol, fmt.Errorf("%w: %v", market.ErrNoBars, err))
		}
		return dbBars, nil
	}

	if len(fetched) > 0 {
		if err := bm.store.SaveBars(ctx, symbol, fetched); err != nil {
			logger.Error("保存K线到数据库失败", "symbol", symbol, "error", err)
			return mergeBars(dbBars, fetched, asOf, count), nil
		}
	}

	// 4. 重新从数据库获取
	final, err := bm.store.GetBars(ctx, symbol, asOf, count)
	if err != nil {
		return mergeBars(dbBars, fetched, asOf, count), nil
	}
	if len(final) == 0 {
		return nil, market.NewDataError(symbol, market.ErrNoBars)
	}
	return final, nil
}

// Sync 补齐 [start, end) 的K线，返回新写入条数
func (bm *BarManager) Sync(ctx context.Context, symbol string, start, end time.Time) (int, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("BarManager")

	if bm.source == nil {
		return 0, fmt.Errorf("no bar source configured")
	}

	dbBars, err := bm.store.GetBarsInRange(ctx, symbol, start, end)
	if err != nil {
		return 0, err
	}

	missing := findMissingRanges(dbBars, start, end, time.Minute)
	if len(missing) == 0 {
		logger.Info("数据库数据完整", "symbol", symbol, "count", len(dbBars))
		return 0, nil
	}
	logger.Info("发现缺失数据段", "symbol", symbol, "missing_ranges", len(missing))

	saved := 0
	for _, r := range missing {
		bars, err := bm.source.GetBars(ctx, symbol, r.Start, r.End, 0)
		if err != nil {
			return saved, fmt.Errorf("fetch %s %s~%s: %w", symbol,
				r.Start.Format("2006-01-02 15:04"), r.End.Format("2006-01-02 15:04"), err)
		}
		if len(bars) == 0 {
			continue
		}
		if err := bm.store.SaveBars(ctx, symbol, bars); err != nil {
			return saved, err
		}
		saved += len(bars)
	}

	logger.Info(fmt.Sprintf("%s 同步完成，新写入 %d 根", symbol, saved))
	return saved, nil
}

// mergeBars 合并去重，按时间排序并截到 asOf
func mergeBars(dbBars market.Window, fetched []*market.Bar, asOf time.Time, count int) market.Window {
	byTime := make(map[int64]*market.Bar, len(dbBars)+len(fetched))
	for _, b := range dbBars {
		byTime[b.Time.UnixMilli()] = b
	}
	for _, b := range fetched {
		if !b.Time.After(asOf) {
			byTime[b.Time.UnixMilli()] = b
		}
	}

	merged := make(market.Window, 0, len(byTime))
	for _, b := range byTime {
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Time.Before(merged[j].Time) })
	return merged.Tail(count)
}

// TimeRange 时间范围
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// findMissingRanges 查找缺失的时间范围，End 为开区间
func findMissingRanges(bars market.Window, start, end time.Time, interval time.Duration) []TimeRange {
	if len(bars) == 0 {
		return []TimeRange{{Start: start, End: end}}
	}

	var missing []TimeRange

	// 检查开始时间之前是否有缺失
	if bars[0].Time.After(start) {
		missing = append(missing, TimeRange{Start: start, End: bars[0].Time})
	}

	// 检查中间的缺失
	for i := 0; i < len(bars)-1; i++ {
		expectedNext := bars[i].Time.Add(interval)
		if bars[i+1].Time.After(expectedNext) {
			missing = append(missing, TimeRange{Start: expectedNext, End: bars[i+1].Time})
		}
	}

	// 检查结束时间之后是否有缺失
	if next := bars.Last().Time.Add(interval); next.Before(end) {
		missing = append(missing, TimeRange{Start: next, End: end})
	}

	return missing
}
