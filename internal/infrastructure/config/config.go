/**
 * Package config 提供配置管理功能
 *
 * 负责加载和管理应用的配置信息，
 * 并把 YAML 配置翻译成各组件的运行期配置。
 */

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chenyang-zz/voxflow/internal/dispatch"
	"github.com/chenyang-zz/voxflow/internal/platform"
	"gopkg.in/yaml.v3"
)

/**
 * Duration 支持 "500ms" 这类人类可读写法的时长类型
 *
 * yaml.v3 不支持直接解析 time.Duration，用包装类型补上。
 */
type Duration time.Duration

// UnmarshalYAML 从 "500ms"、"30s" 这类字符串解析时长
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("无效的时长: %q", value.Value)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML 输出人类可读的时长字符串
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std 转换为标准库的 time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

/**
 * Config 应用配置结构体
 *
 * 包含应用的所有可配置参数
 */
type Config struct {
	// Application 应用基本配置
	Application ApplicationConfig `yaml:"application"`

	// Hotkeys 快捷键调度配置
	Hotkeys HotkeysConfig `yaml:"hotkeys"`

	// EventTap 事件钩子生命周期配置
	EventTap EventTapConfig `yaml:"event_tap"`

	// AI AI 配置
	AI AIConfig `yaml:"ai"`

	// Storage 存储配置
	Storage StorageConfig `yaml:"storage"`

	// Logging 日志配置
	Logging LoggingConfig `yaml:"logging"`
}

/**
 * ApplicationConfig 应用基本配置
 */
type ApplicationConfig struct {
	/** 应用名称 */
	Name string `yaml:"name"`

	/** 应用版本 */
	Version string `yaml:"version"`

	/** 日志级别 */
	LogLevel string `yaml:"log_level"`

	/** 是否启用调试模式 */
	Debug bool `yaml:"debug"`
}

/**
 * HotkeysConfig 快捷键调度配置
 */
type HotkeysConfig struct {
	/** 两次模式激活之间的最小间隔 */
	DebounceInterval Duration `yaml:"debounce_interval"`

	/** 模式切换标志的自动清除延迟 */
	SwitchingWindow Duration `yaml:"switching_window"`

	/** 双击判定阈值 */
	DoubleTapThreshold Duration `yaml:"double_tap_threshold"`

	/** 切换风格下单击动作的延迟窗口 */
	SingleTapDelay Duration `yaml:"single_tap_delay"`

	/** 绑定检查优先级（动作标识列表） */
	Priority []string `yaml:"priority"`

	/** 主绑定双击时触发的备选动作 */
	DoubleTapAlternate string `yaml:"double_tap_alternate"`

	/** 各动作的绑定，键为动作标识 */
	Bindings map[string]BindingConfig `yaml:"bindings"`
}

/**
 * BindingConfig 单个快捷键绑定配置
 */
type BindingConfig struct {
	/** 快捷键组合，如 "Option"、"Cmd+Shift+A" */
	Shortcut string `yaml:"shortcut"`

	/** 激活风格：press_and_hold 或 toggle（只对主动作有意义） */
	Style string `yaml:"style"`

	/** 是否启用 */
	Enabled bool `yaml:"enabled"`
}

/**
 * EventTapConfig 事件钩子生命周期配置
 */
type EventTapConfig struct {
	/** 启动后延迟多久创建钩子 */
	StartupDelay Duration `yaml:"startup_delay"`

	/** 健康检查周期 */
	HealthCheckInterval Duration `yaml:"health_check_interval"`

	/** 创建钩子的最大尝试次数 */
	MaxCreateAttempts int `yaml:"max_create_attempts"`

	/** 两次创建尝试之间的间隔 */
	RetryDelay Duration `yaml:"retry_delay"`
}

/**
 * AIConfig AI 配置
 */
type AIConfig struct {
	/** 是否启用 AI 文本增强 */
	Enabled bool `yaml:"enabled"`

	/** Claude 配置 */
	Claude ClaudeConfig `yaml:"claude"`

	/** 缓存配置 */
	Cache CacheConfig `yaml:"cache"`
}

/**
 * ClaudeConfig Claude API 配置
 */
type ClaudeConfig struct {
	/** API 密钥 */
	APIKey string `yaml:"api_key"`

	/** 使用的模型 */
	Model string `yaml:"model"`

	/** 最大 token 数 */
	MaxTokens int `yaml:"max_tokens"`

	/** 温度参数 */
	Temperature float64 `yaml:"temperature"`
}

/**
 * CacheConfig 缓存配置
 */
type CacheConfig struct {
	/** 是否启用缓存 */
	Enabled bool `yaml:"enabled"`

	/** 缓存过期时间 */
	TTL Duration `yaml:"ttl"`

	/** 最大缓存数量 */
	MaxSize int `yaml:"max_size"`
}

/**
 * StorageConfig 存储配置
 */
type StorageConfig struct {
	/** SQLite 配置 */
	SQLite SQLiteConfig `yaml:"sqlite"`

	/** 会话记录保留天数，0 表示永久保留 */
	RetentionDays int `yaml:"retention_days"`
}

/**
 * SQLiteConfig SQLite 配置
 */
type SQLiteConfig struct {
	/** 数据库文件路径 */
	Path string `yaml:"path"`

	/** 最大打开连接数 */
	MaxOpenConns int `yaml:"max_open_conns"`

	/** 最大空闲连接数 */
	MaxIdleConns int `yaml:"max_idle_conns"`
}

/**
 * LoggingConfig 日志配置
 */
type LoggingConfig struct {
	/** 日志级别 */
	Level string `yaml:"level"`

	/** 文件配置 */
	File FileConfig `yaml:"file"`
}

/**
 * FileConfig 日志文件配置
 */
type FileConfig struct {
	/** 日志文件路径 */
	Path string `yaml:"path"`

	/** 单个日志文件的最大大小（MB） */
	MaxSizeMB int `yaml:"max_size_mb"`

	/** 最大备份文件数 */
	MaxBackups int `yaml:"max_backups"`

	/** 最大保留天数 */
	MaxAgeDays int `yaml:"max_age_days"`

	/** 是否压缩 */
	Compress bool `yaml:"compress"`
}

/**
 * Load 加载配置文件
 *
 * 从 ~/.voxflow/config.yaml 加载配置，文件不存在时使用默认配置。
 * 用户文件中省略的字段回落到默认值。
 *
 * Returns:
 *   - *Config: 加载的配置
 *   - error: 错误信息
 */
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(filepath.Join(homeDir, ".voxflow", "config.yaml"))
}

/**
 * LoadFrom 从指定路径加载配置文件
 *
 * Parameters:
 *   - path: 配置文件路径
 *
 * Returns:
 *   - *Config: 加载的配置
 *   - error: 文件读取或 YAML 解析失败时返回错误
 */
func LoadFrom(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

/**
 * Default 返回默认配置
 *
 * 主绑定是按住 Option 说话，双击切换到模式 A。
 *
 * Returns:
 *   - *Config: 默认配置
 */
func Default() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:     "VoxFlow",
			Version:  "1.0.0",
			LogLevel: "info",
		},
		Hotkeys: HotkeysConfig{
			DebounceInterval:   Duration(500 * time.Millisecond),
			SwitchingWindow:    Duration(300 * time.Millisecond),
			DoubleTapThreshold: Duration(350 * time.Millisecond),
			SingleTapDelay:     Duration(250 * time.Millisecond),
			Priority:           []string{"mode_a", "mode_b", "mode_c", "primary"},
			DoubleTapAlternate: "mode_a",
			Bindings: map[string]BindingConfig{
				"primary": {Shortcut: "Option", Style: "press_and_hold", Enabled: true},
				"mode_a":  {Shortcut: "Cmd+Shift+A", Enabled: true},
				"mode_b":  {Shortcut: "Cmd+Shift+B", Enabled: true},
				"mode_c":  {Shortcut: "Cmd+Shift+C", Enabled: false},
			},
		},
		EventTap: EventTapConfig{
			StartupDelay:        Duration(1500 * time.Millisecond),
			HealthCheckInterval: Duration(30 * time.Second),
			MaxCreateAttempts:   5,
			RetryDelay:          Duration(500 * time.Millisecond),
		},
		AI: AIConfig{
			Enabled: true,
			Claude: ClaudeConfig{
				APIKey:      os.Getenv("ANTHROPIC_API_KEY"),
				Model:       "claude-sonnet-4-20250514",
				MaxTokens:   2048,
				Temperature: 0.3,
			},
			Cache: CacheConfig{
				Enabled: true,
				TTL:     Duration(time.Hour),
				MaxSize: 200,
			},
		},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path:         "~/.voxflow/voxflow.db",
				MaxOpenConns: 1,
				MaxIdleConns: 1,
			},
			RetentionDays: 90,
		},
		Logging: LoggingConfig{
			Level: "info",
			File: FileConfig{
				Path:       "~/.voxflow/logs/voxflow.log",
				MaxSizeMB:  10,
				MaxBackups: 5,
				MaxAgeDays: 30,
				Compress:   true,
			},
		},
	}
}

/**
 * Validate 校验配置的合法性
 *
 * 检查快捷键能否解析、动作标识是否已知、优先级列表是否有效。
 *
 * Returns:
 *   - error: 第一个发现的配置错误
 */
func (c *Config) Validate() error {
	known := map[string]bool{
		string(dispatch.ActionPrimary): true,
		string(dispatch.ActionModeA):   true,
		string(dispatch.ActionModeB):   true,
		string(dispatch.ActionModeC):   true,
	}

	for action, b := range c.Hotkeys.Bindings {
		if !known[action] {
			return fmt.Errorf("未知的动作标识: %s", action)
		}
		if _, err := dispatch.ParseShortcut(b.Shortcut); err != nil {
			return fmt.Errorf("动作 %s 的快捷键无效: %w", action, err)
		}
		switch b.Style {
		case "", string(dispatch.StylePressAndHold), string(dispatch.StyleToggle):
		default:
			return fmt.Errorf("动作 %s 的激活风格无效: %s", action, b.Style)
		}
	}

	for _, action := range c.Hotkeys.Priority {
		if !known[action] {
			return fmt.Errorf("优先级列表包含未知动作: %s", action)
		}
	}

	if alt := c.Hotkeys.DoubleTapAlternate; alt != "" {
		if !known[alt] || alt == string(dispatch.ActionPrimary) {
			return fmt.Errorf("双击备选动作无效: %s", alt)
		}
	}

	if c.EventTap.MaxCreateAttempts <= 0 {
		return fmt.Errorf("max_create_attempts 必须大于 0")
	}

	return nil
}

/**
 * RouterConfig 把快捷键配置翻译成调度器配置
 *
 * Returns:
 *   - dispatch.RouterConfig: 调度器配置
 *   - error: 快捷键解析失败时返回错误
 */
func (c *Config) RouterConfig() (dispatch.RouterConfig, error) {
	bindings := make(map[dispatch.Action]dispatch.Binding, len(c.Hotkeys.Bindings))
	for action, b := range c.Hotkeys.Bindings {
		shortcut, err := dispatch.ParseShortcut(b.Shortcut)
		if err != nil {
			return dispatch.RouterConfig{}, fmt.Errorf("动作 %s 的快捷键无效: %w", action, err)
		}
		style := dispatch.ActivationStyle(b.Style)
		if style == "" {
			style = dispatch.StylePressAndHold
		}
		bindings[dispatch.Action(action)] = dispatch.Binding{
			Action:   dispatch.Action(action),
			Shortcut: shortcut,
			Enabled:  b.Enabled,
			Style:    style,
		}
	}

	priority := make([]dispatch.Action, 0, len(c.Hotkeys.Priority))
	for _, action := range c.Hotkeys.Priority {
		priority = append(priority, dispatch.Action(action))
	}

	return dispatch.RouterConfig{
		Bindings:              bindings,
		Priority:              priority,
		DoubleTapAlternate:    dispatch.Action(c.Hotkeys.DoubleTapAlternate),
		MinActivationInterval: c.Hotkeys.DebounceInterval.Std(),
		SwitchingWindow:       c.Hotkeys.SwitchingWindow.Std(),
		DoubleTapThreshold:    c.Hotkeys.DoubleTapThreshold.Std(),
		SingleTapDelay:        c.Hotkeys.SingleTapDelay.Std(),
	}, nil
}

/**
 * TapConfig 把事件钩子配置翻译成平台层配置
 *
 * Returns:
 *   - platform.EventTapConfig: 平台层配置
 */
func (c *Config) TapConfig() platform.EventTapConfig {
	return platform.EventTapConfig{
		StartupDelay:        c.EventTap.StartupDelay.Std(),
		HealthCheckInterval: c.EventTap.HealthCheckInterval.Std(),
		MaxCreateAttempts:   c.EventTap.MaxCreateAttempts,
		RetryDelay:          c.EventTap.RetryDelay.Std(),
	}
}

/**
 * ExpandPath 展开路径中的 ~ 前缀
 *
 * Parameters:
 *   - path: 可能以 ~ 开头的路径
 *
 * Returns:
 *   - string: 展开后的绝对路径，展开失败时返回原路径
 */
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, path[1:])
}
