package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chenyang-zz/voxflow/internal/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "VoxFlow", cfg.Application.Name)
	assert.Equal(t, 500*time.Millisecond, cfg.Hotkeys.DebounceInterval.Std())
	assert.Equal(t, "mode_a", cfg.Hotkeys.DoubleTapAlternate)
	assert.Equal(t, 5, cfg.EventTap.MaxCreateAttempts)
}

func TestLoadFromOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
hotkeys:
  debounce_interval: 800ms
  double_tap_threshold: 400ms
  bindings:
    primary:
      shortcut: Fn
      style: toggle
      enabled: true
event_tap:
  startup_delay: 2s
  max_create_attempts: 3
`)

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 800*time.Millisecond, cfg.Hotkeys.DebounceInterval.Std())
	assert.Equal(t, 400*time.Millisecond, cfg.Hotkeys.DoubleTapThreshold.Std())
	assert.Equal(t, "Fn", cfg.Hotkeys.Bindings["primary"].Shortcut)
	assert.Equal(t, "toggle", cfg.Hotkeys.Bindings["primary"].Style)
	assert.Equal(t, 2*time.Second, cfg.EventTap.StartupDelay.Std())
	assert.Equal(t, 3, cfg.EventTap.MaxCreateAttempts)

	// 未覆盖的字段保持默认值
	assert.Equal(t, 30*time.Second, cfg.EventTap.HealthCheckInterval.Std())
}

func TestLoadFromRejectsInvalidDuration(t *testing.T) {
	path := writeConfig(t, `
hotkeys:
  debounce_interval: fast
`)
	_, err := LoadFrom(path)
	assert.Error(t, err)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"未知动作", func(c *Config) {
			c.Hotkeys.Bindings["mode_x"] = BindingConfig{Shortcut: "Fn"}
		}},
		{"无效快捷键", func(c *Config) {
			c.Hotkeys.Bindings["primary"] = BindingConfig{Shortcut: "Cmd+Nope"}
		}},
		{"无效激活风格", func(c *Config) {
			c.Hotkeys.Bindings["primary"] = BindingConfig{Shortcut: "Fn", Style: "sticky"}
		}},
		{"优先级包含未知动作", func(c *Config) {
			c.Hotkeys.Priority = []string{"mode_a", "mode_z"}
		}},
		{"双击备选指向主动作", func(c *Config) {
			c.Hotkeys.DoubleTapAlternate = "primary"
		}},
		{"重试次数为零", func(c *Config) {
			c.EventTap.MaxCreateAttempts = 0
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRouterConfigConversion(t *testing.T) {
	cfg := Default()
	rc, err := cfg.RouterConfig()
	require.NoError(t, err)

	assert.Equal(t, dispatch.ActionModeA, rc.DoubleTapAlternate)
	assert.Equal(t, 500*time.Millisecond, rc.MinActivationInterval)
	assert.Equal(t,
		[]dispatch.Action{dispatch.ActionModeA, dispatch.ActionModeB, dispatch.ActionModeC, dispatch.ActionPrimary},
		rc.Priority)

	primary := rc.Bindings[dispatch.ActionPrimary]
	assert.True(t, primary.Enabled)
	assert.Equal(t, dispatch.StylePressAndHold, primary.Style)
	assert.True(t, primary.Shortcut.IsModifierOnly())

	// 未写 style 的绑定回落到按住风格
	modeB := rc.Bindings[dispatch.ActionModeB]
	assert.Equal(t, dispatch.StylePressAndHold, modeB.Style)

	assert.False(t, rc.Bindings[dispatch.ActionModeC].Enabled)
}

func TestTapConfigConversion(t *testing.T) {
	cfg := Default()
	tc := cfg.TapConfig()

	assert.Equal(t, 1500*time.Millisecond, tc.StartupDelay)
	assert.Equal(t, 30*time.Second, tc.HealthCheckInterval)
	assert.Equal(t, 5, tc.MaxCreateAttempts)
	assert.Equal(t, 500*time.Millisecond, tc.RetryDelay)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".voxflow", "voxflow.db"), ExpandPath("~/.voxflow/voxflow.db"))
	assert.Equal(t, "/tmp/x.db", ExpandPath("/tmp/x.db"))
	assert.Equal(t, "", ExpandPath(""))
}
