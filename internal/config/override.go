package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// MergeOverrides 把调用方传入的部分覆盖合并到 base 之上，返回一份
// 全新的、完整解析过的配置。base 永远不会被修改——每次 orchestration
// 调用都拿到自己的不可变配置快照。
func MergeOverrides(base *Config, overrides map[string]any) (*Config, error) {
	if base == nil {
		return nil, fmt.Errorf("nil base config")
	}
	merged := base.clone()
	if len(overrides) == 0 {
		return merged, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "toml",
		WeaklyTypedInput: true,
		Result:           merged,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(overrides); err != nil {
		return nil, fmt.Errorf("merging config overrides failed: %w", err)
	}
	if err := validate(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// clone 做一次值拷贝并复制内部 map，避免共享可变状态。
func (c *Config) clone() *Config {
	dup := *c
	if len(c.Engine.Weights) > 0 {
		weights := make(map[string]float64, len(c.Engine.Weights))
		for k, v := range c.Engine.Weights {
			weights[k] = v
		}
		dup.Engine.Weights = weights
	}
	return &dup
}
