package logger

import (
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 封装zap日志器，提供网格事件的结构化日志
type Logger struct {
	*zap.Logger
	config Config
}

// Config 日志配置
type Config struct {
	Level      string   `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Outputs    []string `yaml:"outputs"`     // stdout, file
	OutputFile string   `yaml:"output_file"` // 日志文件路径
	ErrorFile  string   `yaml:"error_file"`  // 错误日志单独文件
	Format     string   `yaml:"format" validate:"omitempty,oneof=json console"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Outputs: []string{"stdout"},
		Format:  "json",
	}
}

// New 创建新的Logger实例
func New(cfg Config) (*Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{}

	if contains(cfg.Outputs, "stdout") {
		var encoder zapcore.Encoder
		if cfg.Format == "console" {
			encoder = zapcore.NewConsoleEncoder(encoderConfig)
		} else {
			encoder = zapcore.NewJSONEncoder(encoderConfig)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}

	if contains(cfg.Outputs, "file") && cfg.OutputFile != "" {
		fileWriter, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file failed: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(fileWriter), level))
	}

	// 错误日志单独文件
	if cfg.ErrorFile != "" {
		errorWriter, err := os.OpenFile(cfg.ErrorFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open error log file failed: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(errorWriter), zapcore.ErrorLevel))
	}

	zapLogger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{Logger: zapLogger, config: cfg}, nil
}

// NewNop 不输出任何内容，测试使用
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), config: DefaultConfig()}
}

// Wrap 包装一个现成的zap.Logger（例如 zaptest/observer）
func Wrap(z *zap.Logger) *Logger {
	return &Logger{Logger: z, config: DefaultConfig()}
}

// WithFields 添加字段返回新的logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{Logger: l.Logger.With(toZap(fields)...), config: l.config}
}

// LogGrid 记录网格级事件（place / modify_fee / withdraw_profit）
func (l *Logger) LogGrid(event string, gridID uint32, fields map[string]interface{}) {
	fields = stamp(fields, event)
	fields["grid_id"] = gridID
	l.Info("grid_event", toZap(fields)...)
}

// LogFill 记录成交事件
func (l *Logger) LogFill(event string, handle uint64, fields map[string]interface{}) {
	fields = stamp(fields, event)
	fields["handle"] = fmt.Sprintf("%#016x", handle)
	l.Info("fill_event", toZap(fields)...)
}

// LogCancel 记录撤单事件
func (l *Logger) LogCancel(event string, gridID uint32, fields map[string]interface{}) {
	fields = stamp(fields, event)
	fields["grid_id"] = gridID
	l.Info("cancel_event", toZap(fields)...)
}

// LogError 记录错误并附带上下文
func (l *Logger) LogError(err error, context map[string]interface{}) {
	if context == nil {
		context = make(map[string]interface{})
	}
	context["error"] = err.Error()
	context["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	l.Warn("error_event", toZap(context)...)
}

// Close 关闭日志器
func (l *Logger) Close() error {
	return l.Sync()
}

func stamp(fields map[string]interface{}, event string) map[string]interface{} {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["event"] = event
	fields["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	return fields
}

// 按key排序，保证输出稳定
func toZap(fields map[string]interface{}) []zap.Field {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(fields))
	for _, k := range keys {
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
