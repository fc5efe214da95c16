package alert

import (
	"fmt"
	"sync"
	"time"
)

type Level string

const (
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// Alert 告警信息
type Alert struct {
	Level     Level
	Message   string
	Timestamp time.Time
	Fields    map[string]interface{}
}

// Channel 告警通道接口
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Config 告警配置
type Config struct {
	Throttle time.Duration `yaml:"throttle"` // 同一级别+消息的最小发送间隔
}

func DefaultConfig() Config {
	return Config{Throttle: time.Minute}
}

// Manager 告警管理器：限流后广播到所有通道
type Manager struct {
	channels []Channel
	throttle *Throttler
	mu       sync.RWMutex
}

// Throttler 告警限流器
type Throttler struct {
	lastSent map[string]time.Time
	interval time.Duration
	now      func() time.Time
	mu       sync.Mutex
}

func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{
		lastSent: make(map[string]time.Time),
		interval: interval,
		now:      time.Now,
	}
}

// Allow 检查是否允许发送（限流）
func (t *Throttler) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	last, ok := t.lastSent[key]
	if !ok || now.Sub(last) >= t.interval {
		t.lastSent[key] = now
		return true
	}
	return false
}

func (t *Throttler) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSent = make(map[string]time.Time)
}

func NewManager(cfg Config, channels ...Channel) *Manager {
	return &Manager{
		channels: channels,
		throttle: NewThrottler(cfg.Throttle),
	}
}

// Send 发送告警。被限流时静默返回 nil；所有通道都失败才返回错误
func (m *Manager) Send(a Alert) error {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	if !m.throttle.Allow(fmt.Sprintf("%s:%s", a.Level, a.Message)) {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var lastErr error
	ok := 0
	for _, ch := range m.channels {
		if err := ch.Send(a); err != nil {
			lastErr = fmt.Errorf("channel %s failed: %w", ch.Name(), err)
		} else {
			ok++
		}
	}
	if ok == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

func (m *Manager) SendWarning(message string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: LevelWarning, Message: message, Fields: fields})
}

func (m *Manager) SendError(message string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: LevelError, Message: message, Fields: fields})
}

func (m *Manager) SendCritical(message string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: LevelCritical, Message: message, Fields: fields})
}

func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
}

func (m *Manager) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}

func (m *Manager) ResetThrottle() {
	m.throttle.Clear()
}
