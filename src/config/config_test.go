package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"equitybot/src/broker"
	"equitybot/src/tracking"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFactory struct{}

func (stubFactory) CreateClient() (broker.Broker, error) { return nil, errors.New("stub") }

func validConfig() *Config {
	c := *AppConfig
	c.Broker = "stub"
	return &c
}

func TestConfig_Validate(t *testing.T) {
	broker.RegisterFactory("stub", stubFactory{})

	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"default backtest", func(c *Config) {}, ""},
		{"live with registered broker", func(c *Config) { c.Mode = ModeLive }, ""},
		{"dry run", func(c *Config) { c.Mode = ModeDry }, ""},
		{"empty mode", func(c *Config) { c.Mode = "" }, "mode"},
		{"paper is not a mode", func(c *Config) { c.Mode = "paper" }, "mode"},
		{"unknown broker", func(c *Config) { c.Mode = ModeLive; c.Broker = "nasdaq" }, "broker"},
		{"backtest ignores broker", func(c *Config) { c.Broker = "nasdaq" }, ""},
		{"bad start date", func(c *Config) { c.Backtest.StartDate = "2024/03/04" }, "backtest.start_date"},
		{"bad end date", func(c *Config) { c.Backtest.EndDate = "" }, "backtest.end_date"},
		{"end before start", func(c *Config) { c.Backtest.EndDate = "2024-03-01" }, "backtest.end_date"},
		{"negative capital", func(c *Config) { c.Backtest.InitialCapital = -1000 }, "backtest.initial_capital"},
		{"negative markup", func(c *Config) { c.Backtest.FillMarkup = -0.01 }, "backtest"},
		{"zero step", func(c *Config) { c.Backtest.StepSec = 0 }, "backtest.step_sec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestConfig_Getters(t *testing.T) {
	c := validConfig()

	start, err := c.GetStartTime()
	require.NoError(t, err)
	end, err := c.GetEndTime()
	require.NoError(t, err)
	assert.True(t, end.After(start))

	assert.True(t, c.GetInitialCapital().Equal(decimal.NewFromInt(100000)))
	assert.True(t, c.GetFillMarkup().Equal(decimal.NewFromFloat(0.01)))
	assert.True(t, c.GetCommission().IsZero())

	assert.True(t, c.IsBacktestMode())
	c.Mode = ModeDry
	assert.True(t, c.IsDryRun())
	assert.False(t, c.IsLiveMode())
}

func TestAppConfig_DefaultValues(t *testing.T) {
	// 验证全局配置的默认值
	assert.NotNil(t, AppConfig)
	assert.Equal(t, "binance", AppConfig.Broker)
	assert.Equal(t, ModeBacktest, AppConfig.Mode)
	assert.Equal(t, 60, AppConfig.Backtest.StepSec)
	assert.NotEmpty(t, AppConfig.Token.RefreshSpec)
	// 配置库不接受 nil 切片
	assert.NotNil(t, AppConfig.Universe)
	assert.Empty(t, AppConfig.Universe)
}

func TestProfileManager(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"symbol": "ABC", "status": "TRADING", "sector": "Biotech", "free_float": "12000000", "turnover": "5000000"},
		{"symbol": "XYZ", "status": "HALTED", "sector": "Energy"}
	]`), 0644))

	m := NewProfileManager()
	require.NoError(t, m.LoadFromFile(path))
	assert.Equal(t, 2, m.Len())
	assert.True(t, m.IsActive("ABC"))
	assert.False(t, m.IsActive("XYZ"))
	assert.False(t, m.IsActive("NONE"))
	assert.Equal(t, []string{"ABC"}, m.ActiveSymbols())

	t.Run("apply keeps streaks", func(t *testing.T) {
		tracker := tracking.NewTracker()
		tracker.Stat("ABC").LoseStreak = 2

		assert.Equal(t, 2, m.Apply(tracker))
		st := tracker.Stat("ABC")
		assert.Equal(t, "Biotech", st.Sector)
		assert.True(t, st.FreeFloat.Equal(decimal.NewFromInt(12000000)))
		assert.Equal(t, 2, st.LoseStreak)
		assert.Equal(t, "Energy", tracker.Stat("XYZ").Sector)
	})

	t.Run("save and reload", func(t *testing.T) {
		m.Add(&SymbolProfile{Symbol: "NEW", Status: ProfileStatusActive})
		m.Remove("XYZ")
		out := filepath.Join(dir, "out.json")
		require.NoError(t, m.SaveToFile(out))

		reloaded := NewProfileManager()
		require.NoError(t, reloaded.LoadFromFile(out))
		assert.Equal(t, []string{"ABC", "NEW"}, reloaded.ActiveSymbols())
		p, ok := reloaded.Get("ABC")
		require.True(t, ok)
		assert.Equal(t, "Biotech", p.Sector)
	})

	t.Run("bad file", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{not json`), 0644))
		var cfgErr *ConfigError
		assert.ErrorAs(t, NewProfileManager().LoadFromFile(bad), &cfgErr)
		assert.Error(t, NewProfileManager().LoadFromFile(filepath.Join(dir, "missing.json")))
	})
}
