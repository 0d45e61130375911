/**
 * Package logger 提供结构化日志功能
 *
 * 基于 uber-go/zap 实现的高性能结构化日志系统。
 * 开发环境输出彩色控制台日志，生产环境输出 JSON，
 * 文件输出通过 lumberjack 自动轮转。
 */
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// logger 全局日志实例
	logger *zap.Logger

	// once 确保日志只初始化一次
	once sync.Once
)

// FileOptions 日志文件输出配置
//
// 字段直接映射到 lumberjack 的轮转参数。
type FileOptions struct {
	// Path 日志文件路径，为空表示不输出到文件
	Path string

	// MaxSizeMB 单个日志文件的最大大小（MB）
	MaxSizeMB int

	// MaxBackups 保留的历史文件数量
	MaxBackups int

	// MaxAgeDays 历史文件的最大保留天数
	MaxAgeDays int

	// Compress 是否压缩历史文件
	Compress bool
}

// Init 初始化日志系统
//
// 根据环境变量和文件配置初始化全局 logger：
//   - 开发环境（ENV != production）：控制台彩色输出，Debug 级别
//   - 生产环境：JSON 格式，Info 级别
//   - file.Path 非空时，additionally 输出到 lumberjack 轮转文件
//
// 环境变量：
//   - ENV: 环境类型（development/production），默认为 development
//   - LOG_LEVEL: 日志级别（debug/info/warn/error/fatal），默认根据环境自动设置
//
// Parameters: file - 文件输出配置
// Returns: error - 初始化失败时返回错误
func Init(file FileOptions) error {
	var initErr error
	once.Do(func() {
		env := getEnv("ENV", "development")

		if env == "production" {
			logger, initErr = buildProductionLogger(file)
		} else {
			logger, initErr = buildDevelopmentLogger(file)
		}
	})

	return initErr
}

// buildDevelopmentLogger 构建开发环境日志
//
// 控制台彩色输出，Debug 级别，友好的时间格式。
func buildDevelopmentLogger(file FileOptions) (*zap.Logger, error) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.999"),
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	level := parseLevel(getEnv("LOG_LEVEL", "debug"), zapcore.DebugLevel)

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)

	core := consoleCore
	if file.Path != "" {
		core = zapcore.NewTee(consoleCore, fileCore(file, level))
	}

	return zap.New(core, zap.AddCaller()), nil
}

// buildProductionLogger 构建生产环境日志
//
// JSON 格式，Info 级别，Error 级别以上附带堆栈跟踪。
func buildProductionLogger(file FileOptions) (*zap.Logger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	level := parseLevel(getEnv("LOG_LEVEL", "info"), zapcore.InfoLevel)

	stdoutCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)

	core := stdoutCore
	if file.Path != "" {
		core = zapcore.NewTee(stdoutCore, fileCore(file, level))
	}

	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// fileCore 创建基于 lumberjack 轮转文件的日志核心
func fileCore(file FileOptions, level zapcore.Level) zapcore.Core {
	writer := &lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    file.MaxSizeMB,
		MaxBackups: file.MaxBackups,
		MaxAge:     file.MaxAgeDays,
		Compress:   file.Compress,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(writer),
		level,
	)
}

// parseLevel 解析日志级别字符串
//
// 解析失败时返回 fallback。
func parseLevel(s string, fallback zapcore.Level) zapcore.Level {
	level, err := zapcore.ParseLevel(s)
	if err != nil {
		return fallback
	}
	return level
}

// Get 获取全局 logger 实例
//
// 如果日志系统未初始化，会自动按默认配置初始化（开发模式）。
//
// Returns: *zap.Logger - 全局 logger 实例
func Get() *zap.Logger {
	if logger == nil {
		_ = Init(FileOptions{})
	}
	return logger
}

// Sync 刷新日志缓冲区
//
// 应用退出前应该调用此方法确保所有日志都已写入。
func Sync() error {
	if logger != nil {
		return logger.Sync()
	}
	return nil
}

// Debug 记录 Debug 级别日志
func Debug(msg string, fields ...zap.Field) {
	Get().Debug(msg, fields...)
}

// Info 记录 Info 级别日志
func Info(msg string, fields ...zap.Field) {
	Get().Info(msg, fields...)
}

// Warn 记录 Warn 级别日志
func Warn(msg string, fields ...zap.Field) {
	Get().Warn(msg, fields...)
}

// Error 记录 Error 级别日志
func Error(msg string, fields ...zap.Field) {
	Get().Error(msg, fields...)
}

// With 创建带有预设字段的 logger
//
// 用于在日志中自动添加上下文信息（如组件名）。
func With(fields ...zap.Field) *zap.Logger {
	return Get().With(fields...)
}

// getEnv 获取环境变量，不存在时返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
