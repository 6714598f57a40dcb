package engine

import (
	"testing"

	"equitybot/src/timeframes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_Specs(t *testing.T) {
	hours := timeframes.SessionConfigValue
	cal := timeframes.MustDefaultCalendar()

	t.Run("default hours", func(t *testing.T) {
		specs, err := NewScheduler(hours, cal, 10).Specs()
		require.NoError(t, err)
		assert.Equal(t, "0 0 4 * * MON-FRI", specs[HookBegin])
		assert.Equal(t, "0 50 19 * * MON-FRI", specs[HookEnd])
		assert.Equal(t, "0 0 20 * * MON-FRI", specs[HookFinal])
	})

	t.Run("lead too long", func(t *testing.T) {
		_, err := NewScheduler(hours, cal, 16*60).Specs()
		assert.Error(t, err)
	})

	t.Run("bad clock", func(t *testing.T) {
		bad := hours
		bad.AfterClose = "8pm"
		_, err := NewScheduler(bad, cal, 10).Specs()
		assert.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"poll below one second", func(c *Config) { c.PollIntervalSec = 0 }, true},
		{"no end iterations", func(c *Config) { c.EndIterations = 0 }, true},
		{"negative lead", func(c *Config) { c.EndLeadMin = -1 }, true},
		{"no styles", func(c *Config) { c.Styles = nil }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := EngineConfigValue
			c.Styles = append([]string(nil), EngineConfigValue.Styles...)
			tt.mutate(&c)
			if tt.wantErr {
				assert.Error(t, c.Validate())
			} else {
				assert.NoError(t, c.Validate())
			}
		})
	}
}
