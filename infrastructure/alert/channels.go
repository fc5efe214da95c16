package alert

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"gridex-go/infrastructure/logger"
)

// LoggerChannel 把告警写入结构化日志
type LoggerChannel struct {
	log  *logger.Logger
	name string
}

func NewLoggerChannel(name string, log *logger.Logger) *LoggerChannel {
	return &LoggerChannel{log: log, name: name}
}

func (c *LoggerChannel) Send(a Alert) error {
	l := c.log.WithFields(a.Fields)
	fields := []zap.Field{zap.String("level", string(a.Level)), zap.Time("at", a.Timestamp)}
	switch a.Level {
	case LevelWarning:
		l.Warn(a.Message, fields...)
	default:
		l.Error(a.Message, fields...)
	}
	return nil
}

func (c *LoggerChannel) Name() string { return c.name }

// MemoryChannel 记录收到的告警，测试和本地模拟使用
type MemoryChannel struct {
	name   string
	fail   bool
	alerts []Alert
	mu     sync.Mutex
}

func NewMemoryChannel(name string) *MemoryChannel {
	return &MemoryChannel{name: name}
}

func (c *MemoryChannel) Send(a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("memory channel failing")
	}
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *MemoryChannel) Name() string { return c.name }

func (c *MemoryChannel) SetFailing(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = fail
}

func (c *MemoryChannel) Alerts() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Alert(nil), c.alerts...)
}
