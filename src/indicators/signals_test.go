package indicators

import (
	"testing"
	"time"

	"equitybot/src/market"
	"equitybot/src/timeframes"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC) // 周三常规时段

func minute(i int) time.Time {
	return base.Add(time.Duration(i) * time.Minute)
}

func flatTrail(n int, volume float64) market.Window {
	w := make(market.Window, 0, n)
	for i := 0; i < n; i++ {
		w = append(w, market.NewTestBar(minute(i), 10, 10.1, 9.95, 10.05, volume))
	}
	return w
}

func peakPattern(gainClose float64) market.Window {
	w := flatTrail(10, 1000)
	w = append(w,
		market.NewTestBar(minute(10), 10, 10.7, 9.98, gainClose, 5000), // 放量阳线
		market.NewTestBar(minute(11), 10.55, 10.6, 10.25, 10.3, 4000),  // 阴线
		market.NewTestBar(minute(12), 10.3, 10.4, 10.2, 10.35, 1000),   // 形成中
	)
	return w
}

func TestBarsUpdated(t *testing.T) {
	w := flatTrail(5, 1000)
	last := w.Last().Time

	assert.True(t, BarsUpdated(w, 1, last.Add(30*time.Second)))
	assert.True(t, BarsUpdated(w, 1, last.Add(60*time.Second)))
	assert.False(t, BarsUpdated(w, 1, last.Add(61*time.Second)))
	assert.True(t, BarsUpdated(w, 5, last.Add(4*time.Minute)))
	assert.False(t, BarsUpdated(market.Window{}, 1, last))
}

func TestBarsContinuous(t *testing.T) {
	cal := timeframes.MustDefaultCalendar()

	t.Run("consecutive one minute bars", func(t *testing.T) {
		w := flatTrail(20, 1000)
		assert.True(t, BarsContinuous(w, 1, 15, cal))
	})

	t.Run("skipped bar", func(t *testing.T) {
		w := flatTrail(20, 1000)
		w = append(w[:10:10], w[11:]...)
		assert.False(t, BarsContinuous(w, 1, 15, cal))
	})

	t.Run("gap outside examined period", func(t *testing.T) {
		w := flatTrail(20, 1000)
		w = append(w[:2:2], w[3:]...)
		assert.True(t, BarsContinuous(w, 1, 5, cal))
	})

	t.Run("only the current hour class is examined", func(t *testing.T) {
		open := time.Date(2024, 3, 6, 9, 30, 0, 0, time.UTC)
		w := market.Window{
			market.NewTestBar(open.Add(-5*time.Minute), 10, 10.1, 9.9, 10, 100), // 盘前，与下一根有缺口
			market.NewTestBar(open.Add(-2*time.Minute), 10, 10.1, 9.9, 10, 100),
		}
		for i := 0; i < 5; i++ {
			w = append(w, market.NewTestBar(open.Add(time.Duration(i)*time.Minute), 10, 10.1, 9.9, 10, 100))
		}
		assert.True(t, BarsContinuous(w, 1, 10, cal))
	})

	t.Run("resampled five minute bars", func(t *testing.T) {
		w := make(market.Window, 0, 6)
		for i := 0; i < 6; i++ {
			w = append(w, market.NewTestBar(base.Add(time.Duration(5*i)*time.Minute), 10, 10.1, 9.9, 10, 100))
		}
		assert.True(t, BarsContinuous(w, 5, 5, cal))
		assert.False(t, BarsContinuous(w, 1, 5, cal))
	})
}

func TestAtPeak(t *testing.T) {
	p := DefaultParams()

	t.Run("climax then reversal", func(t *testing.T) {
		assert.True(t, AtPeak(peakPattern(10.6), &p))
	})

	t.Run("gain too small", func(t *testing.T) {
		assert.False(t, AtPeak(peakPattern(10.3), &p))
	})

	t.Run("no reversal bar", func(t *testing.T) {
		w := peakPattern(10.6)
		w[len(w)-2] = market.NewTestBar(minute(11), 10.3, 10.6, 10.25, 10.55, 4000)
		assert.False(t, AtPeak(w, &p))
	})

	t.Run("not the window high", func(t *testing.T) {
		w := peakPattern(10.6)
		w[len(w)-1] = market.NewTestBar(minute(12), 10.3, 10.9, 10.2, 10.35, 1000)
		assert.False(t, AtPeak(w, &p))
	})

	t.Run("volume not climactic", func(t *testing.T) {
		w := peakPattern(10.6)
		w[len(w)-3].Volume = decimal.NewFromInt(1500)
		w[len(w)-2].Volume = decimal.NewFromInt(1200)
		assert.False(t, AtPeak(w, &p))
	})

	t.Run("short window", func(t *testing.T) {
		w := peakPattern(10.6)
		assert.False(t, AtPeak(w.Tail(3), &p))
	})
}

func TestVolatility(t *testing.T) {
	p := DefaultParams()

	assert.True(t, Volatility(flatTrail(10, 1000), 10, &p))

	flat := make(market.Window, 0, 5)
	for i := 0; i < 5; i++ {
		flat = append(flat, market.NewTestBar(minute(i), 10, 10, 10, 10, 100))
	}
	assert.False(t, Volatility(flat, 5, &p))

	twoLevels := make(market.Window, 0, 5)
	for i := 0; i < 5; i++ {
		twoLevels = append(twoLevels, market.NewTestBar(minute(i), 10, 11, 10, 11, 100))
	}
	assert.False(t, Volatility(twoLevels, 5, &p))
}

func TestCandleColors(t *testing.T) {
	p := DefaultParams()
	w := market.Window{
		market.NewTestBar(minute(0), 10, 10.6, 9.9, 10.5, 100),
		market.NewTestBar(minute(1), 10.5, 10.6, 10.2, 10.3, 100),
		market.NewTestBar(minute(2), 10.3, 10.5, 10.2, 10.4, 100),
		market.NewTestBar(minute(3), 10.4, 10.6, 10.3, 10.5, 100),
		market.NewTestBar(minute(4), 10.5, 10.7, 10.4, 10.6, 100),
	}

	assert.True(t, LargestCandleIsGreen(w, 5))
	assert.True(t, MoreGreen(w, 5, &p))  // 4/5
	assert.True(t, MostGreen(w, 5, &p))  // 0.8
	assert.False(t, MostGreen(w[:2], 2, &p)) // 1/2

	w[1] = market.NewTestBar(minute(1), 10.5, 10.6, 9.5, 9.6, 100)
	assert.False(t, LargestCandleIsGreen(w, 5))
}

func TestHasLongWickUp(t *testing.T) {
	p := DefaultParams()
	w := flatTrail(10, 1000)
	w = append(w, market.NewTestBar(minute(10), 10, 11, 9.98, 10.1, 1000))
	w = append(w, market.NewTestBar(minute(11), 10.1, 10.2, 10.0, 10.15, 1000))

	assert.True(t, HasLongWickUp(w, 10, 1, &p))
	assert.False(t, HasLongWickUp(w, 10, 2, &p))
	assert.False(t, HasLongWickUp(flatTrail(10, 1000), 10, 1, &p))
}

func TestHasVolume(t *testing.T) {
	p := DefaultParams()

	assert.True(t, HasVolume(flatTrail(20, 30000), 1, 10, timeframes.HourClassRegular, &p))
	assert.False(t, HasVolume(flatTrail(20, 5000), 1, 10, timeframes.HourClassRegular, &p))
	assert.True(t, HasVolume(flatTrail(20, 5000), 1, 10, timeframes.HourClassPreMarket, &p))
	assert.False(t, HasVolume(flatTrail(20, 5000), 5, 10, timeframes.HourClassPreMarket, &p))
	assert.False(t, HasVolume(flatTrail(20, 0), 1, 10, timeframes.HourClassPreMarket, &p))

	// 短窗口量萎缩
	w := flatTrail(20, 30000)
	for _, b := range w.Tail(5) {
		b.Volume = decimal.NewFromInt(100)
	}
	assert.False(t, HasVolume(w, 1, 10, timeframes.HourClassRegular, &p))
}

func TestRelativeVolume(t *testing.T) {
	p := DefaultParams()

	assert.False(t, RelativeVolume(flatTrail(8, 100), &p))

	w := flatTrail(8, 100)
	w.Last().Volume = decimal.NewFromInt(500)
	assert.True(t, RelativeVolume(w, &p))

	w = flatTrail(8, 100)
	for _, b := range w.Tail(3) {
		b.Volume = decimal.NewFromInt(350)
	}
	assert.True(t, RelativeVolume(w, &p))
}

func TestAmountGrinding(t *testing.T) {
	w := make(market.Window, 0, 6)
	for i := 0; i < 6; i++ {
		w = append(w, market.NewTestBar(minute(i), 10, 10.1, 9.9, 10, float64(100*(i+1))))
	}
	w.Last().Volume = decimal.NewFromInt(1) // 形成中的K线不参与

	assert.True(t, AmountGrinding(w, 4))

	w[3].Volume = decimal.NewFromInt(50)
	assert.False(t, AmountGrinding(w, 4))
	assert.False(t, AmountGrinding(w.Tail(2), 4))
}

func TestBearishAndReversal(t *testing.T) {
	p := DefaultParams()

	assert.True(t, BearishCandle(market.NewTestBar(minute(0), 10, 10.05, 9.15, 9.2, 100), &p))
	assert.False(t, BearishCandle(market.NewTestBar(minute(0), 10, 10.5, 9.5, 9.9, 100), &p))
	assert.False(t, BearishCandle(market.NewTestBar(minute(0), 10, 10.5, 9.9, 10.2, 100), &p))

	w := flatTrail(8, 100)
	w = append(w,
		market.NewTestBar(minute(8), 10, 10.15, 9.98, 10.1, 100),
		market.NewTestBar(minute(9), 10.1, 10.12, 9.85, 9.9, 100),
	)
	assert.True(t, Reversal(w, 8, &p))

	w[len(w)-1] = market.NewTestBar(minute(9), 10.1, 10.12, 10.06, 10.07, 100)
	assert.False(t, Reversal(w, 8, &p))
}

func TestVolumeForPositionSize(t *testing.T) {
	p := DefaultParams()
	w := flatTrail(10, 2000)

	assert.True(t, VolumeForPositionSize(w, 5, decimal.NewFromInt(100), timeframes.HourClassRegular, &p))
	assert.False(t, VolumeForPositionSize(w, 5, decimal.NewFromInt(300), timeframes.HourClassRegular, &p))
	assert.True(t, VolumeForPositionSize(w, 5, decimal.NewFromInt(300), timeframes.HourClassPreMarket, &p))
	assert.False(t, VolumeForPositionSize(w, 5, decimal.NewFromInt(1), timeframes.HourClassClosed, &p))
}

func TestAverages(t *testing.T) {
	w := make(market.Window, 0, 15)
	for i := 0; i < 15; i++ {
		w = append(w, market.NewTestBar(minute(i), 10, 10.5, 9.5, 10, 100))
	}

	assert.InDelta(t, 10.0, EMA(w, 9).InexactFloat64(), 1e-9)
	assert.InDelta(t, 1.0, ATR(w, 14).InexactFloat64(), 1e-9)
	assert.InDelta(t, 10.0, EMA(w.Tail(3), 9).InexactFloat64(), 1e-9)
	assert.True(t, EMA(market.Window{}, 9).IsZero())
	assert.True(t, ATR(w.Tail(1), 14).IsZero())

	rising := market.CreateTestSeries(base, []float64{10, 10.2, 10.4, 10.6, 10.8, 11}, 100)
	roc := RateOfChange(rising, 5)
	assert.InDelta(t, 0.1, roc.InexactFloat64(), 1e-9)
	assert.True(t, HighOfCloses(rising, 3).Equal(decimal.NewFromFloat(10.8)))
	assert.True(t, LowOfLows(rising, 20).Equal(rising[0].Low))
	assert.True(t, RateOfChangeFromHigh(rising, 5).IsPositive())
}

func TestBollingerBands(t *testing.T) {
	p := DefaultParams()

	_, err := NewBollingerBands(20, 2).Calculate(flatTrail(5, 100))
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = NewBollingerBands(0, 2).Calculate(flatTrail(5, 100))
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	w := flatTrail(25, 100)
	res, err := NewBollingerBands(20, 2).Calculate(w)
	require.NoError(t, err)
	assert.True(t, res.MiddleBand.Equal(decimal.NewFromFloat(10.05)))
	assert.False(t, Overextended(w, &p))

	w = append(w, market.NewTestBar(minute(25), 10.05, 11.2, 10.05, 11.2, 100))
	assert.True(t, Overextended(w, &p))
}

func TestParams_Validate(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Validate())

	p.MostGreenRatio = 1.5
	assert.Error(t, p.Validate())

	p = DefaultParams()
	p.AtPeakClimaxPeriod = 0
	assert.ErrorIs(t, p.Validate(), ErrInvalidPeriod)

	// 拷贝互不影响
	q := DefaultParams()
	q.MinVolume.Regular = 1
	assert.Equal(t, 20000.0, DefaultParams().MinVolume.Regular)
}

func TestSignalsConfigDefaults(t *testing.T) {
	p := DefaultParams()

	v, ok := p.MinVolume.Of(timeframes.HourClassRegular)
	require.True(t, ok)
	assert.Equal(t, 20000.0, v)
	v, ok = p.VolumePositionScale.Of(timeframes.HourClassAfterHours)
	require.True(t, ok)
	assert.Equal(t, 0.5, v)

	_, ok = p.MinVolume.Of(timeframes.HourClassClosed)
	assert.False(t, ok)
	assert.Equal(t, 2.5, p.WickUpRatio)
	assert.Equal(t, 0.8, p.MostGreenRatio)
}
