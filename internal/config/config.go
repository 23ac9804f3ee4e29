package config

import (
	"fmt"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取 YAML 配置文件并应用默认值。
// 文件可以只覆盖部分字段；keySet 记录显式设置过的路径，
// 避免把“显式写成零值”的字段又覆盖回默认值。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(abs)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", abs, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, decoderOptions); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	setKeys := make(keySet)
	collectSettingsKeys(v.AllSettings(), "", setKeys)
	cfg.applyDefaults(setKeys)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回一份全默认配置（无配置文件启动与测试使用）。
func Default() *Config {
	var cfg Config
	cfg.applyDefaults(make(keySet))
	return &cfg
}

func decoderOptions(dc *mapstructure.DecoderConfig) {
	dc.TagName = "toml"
	dc.WeaklyTypedInput = true
}

func collectSettingsKeys(settings map[string]any, prefix string, keys keySet) {
	for name, raw := range settings {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		if child, ok := raw.(map[string]any); ok {
			collectSettingsKeys(child, path, keys)
			continue
		}
		keys.mark(path)
	}
}
