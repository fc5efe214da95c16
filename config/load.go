package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"gridex-go/infrastructure/alert"
	"gridex-go/infrastructure/logger"
	"gridex-go/infrastructure/monitor"
	"gridex-go/order"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env       string          `yaml:"env" validate:"required,oneof=dev test prod"`
	Admin     string          `yaml:"admin" validate:"required"`
	Engine    EngineConfig    `yaml:"engine"`
	Store     StoreConfig     `yaml:"store"`
	Log       logger.Config   `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	HotReload HotReloadConfig `yaml:"hot_reload"`
	Alert     alert.Config    `yaml:"alert"`
}

type EngineConfig struct {
	OneshotFeeBps     uint32   `yaml:"oneshot_fee_bps"`
	MaxCallDepth      int      `yaml:"max_call_depth" validate:"gte=1,lte=16"`
	AllowedStrategies []string `yaml:"allowed_strategies" validate:"dive,oneof=linear geometric"`
}

type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"`
}

// MetricsConfig 指标命名空间 + 可选的 /metrics 监听地址
type MetricsConfig struct {
	monitor.Config `yaml:",inline"`
	Listen         string `yaml:"listen" validate:"omitempty,hostname_port"`
}

// Default 返回默认配置，Load 在其上覆盖文件中的字段
func Default() AppConfig {
	return AppConfig{
		Env: "dev",
		Engine: EngineConfig{
			OneshotFeeBps:     500,
			MaxCallDepth:      order.MaxCallDepth,
			AllowedStrategies: []string{"linear", "geometric"},
		},
		Store:     StoreConfig{Path: "data/gridex"},
		Log:       logger.DefaultConfig(),
		Metrics:   MetricsConfig{Config: monitor.DefaultConfig()},
		HotReload: DefaultHotReloadConfig(),
		Alert:     alert.DefaultConfig(),
	}
}

// AdminAddress returns the parsed admin address. Call after Validate.
func (c AppConfig) AdminAddress() common.Address {
	return common.HexToAddress(c.Admin)
}

// Load reads YAML config from path and applies validation.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides deployment fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("GRIDEX_ONESHOT_FEE_BPS"); v != "" {
		fee, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return cfg, ErrInvalid(fmt.Sprintf("GRIDEX_ONESHOT_FEE_BPS: %v", err))
		}
		cfg.Engine.OneshotFeeBps = uint32(fee)
	}
	if v := os.Getenv("GRIDEX_STORE_PATH"); v != "" {
		cfg.Store.Path = v
		cfg.Store.Enabled = true
	}
	return cfg, Validate(cfg)
}
