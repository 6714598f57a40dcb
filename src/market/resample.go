package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Resample 将1分钟K线聚合为N分钟K线
// 以 N 分钟边界分桶：open取首根，close取末根，high/low取极值，volume求和，vwap按量加权
func Resample(w Window, scale int) (Window, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("invalid resample scale: %d", scale)
	}
	if scale == 1 || len(w) == 0 {
		return w, nil
	}

	step := time.Duration(scale) * time.Minute
	out := make(Window, 0, len(w)/scale+1)

	var cur *Bar
	var weighted decimal.Decimal
	flush := func() {
		if cur == nil {
			return
		}
		if cur.Volume.IsPositive() {
			cur.VWAP = weighted.Div(cur.Volume)
		}
		out = append(out, cur)
	}

	for _, b := range w {
		bucket := b.Time.Truncate(step)
		if cur == nil || !cur.Time.Equal(bucket) {
			flush()
			cur = &Bar{
				Time:   bucket,
				Open:   b.Open,
				High:   b.High,
				Low:    b.Low,
				Close:  b.Close,
				Volume: b.Volume,
				VWAP:   b.VWAP,
			}
			weighted = b.VWAP.Mul(b.Volume)
			continue
		}
		cur.High = decimal.Max(cur.High, b.High)
		cur.Low = decimal.Min(cur.Low, b.Low)
		cur.Close = b.Close
		cur.Volume = cur.Volume.Add(b.Volume)
		cur.VWAP = b.VWAP
		weighted = weighted.Add(b.VWAP.Mul(b.Volume))
	}
	flush()

	return out, nil
}
