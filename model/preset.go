package model

import (
	"fmt"
	"sort"
)

const (
	PresetSubtle   = "subtle"
	PresetModerate = "moderate"
	PresetDramatic = "dramatic"
)

// Preset 一组撕纸效果参数组合
type Preset struct {
	EdgeRoughness    float64 `json:"edge_roughness"`
	ShadowIntensity  float64 `json:"shadow_intensity"`
	ShadowOffsetX    int     `json:"shadow_offset_x"`
	ShadowOffsetY    int     `json:"shadow_offset_y"`
	ShadowBlurRadius int     `json:"shadow_blur_radius"`
	NoiseScale       float64 `json:"noise_scale"`
	EdgeThreshold    float64 `json:"edge_threshold"`
	TearRadius       float64 `json:"tear_radius"`
}

var Presets = map[string]Preset{
	PresetSubtle: {
		EdgeRoughness:    0.3,
		ShadowIntensity:  0.4,
		ShadowOffsetX:    5,
		ShadowOffsetY:    5,
		ShadowBlurRadius: 15,
		NoiseScale:       12.0,
		EdgeThreshold:    0.25,
		TearRadius:       3,
	},
	PresetModerate: {
		EdgeRoughness:    0.6,
		ShadowIntensity:  0.8,
		ShadowOffsetX:    8,
		ShadowOffsetY:    8,
		ShadowBlurRadius: 25,
		NoiseScale:       8.0,
		EdgeThreshold:    0.15,
		TearRadius:       4,
	},
	PresetDramatic: {
		EdgeRoughness:    0.9,
		ShadowIntensity:  1.2,
		ShadowOffsetX:    12,
		ShadowOffsetY:    12,
		ShadowBlurRadius: 35,
		NoiseScale:       5.0,
		EdgeThreshold:    0.1,
		TearRadius:       6,
	},
}

// Apply 用预设覆盖对应字段
func (p Preset) Apply(cfg EffectConfig) EffectConfig {
	cfg.EdgeRoughness = p.EdgeRoughness
	cfg.ShadowIntensity = p.ShadowIntensity
	cfg.ShadowOffsetX = p.ShadowOffsetX
	cfg.ShadowOffsetY = p.ShadowOffsetY
	cfg.ShadowBlurRadius = p.ShadowBlurRadius
	cfg.NoiseScale = p.NoiseScale
	cfg.EdgeThreshold = p.EdgeThreshold
	cfg.TearRadius = p.TearRadius
	return cfg
}

// WithPreset 按名称应用预设，空名称原样返回
func (c EffectConfig) WithPreset(name string) (EffectConfig, error) {
	if name == "" {
		return c, nil
	}
	p, ok := Presets[name]
	if !ok {
		return c, &ParamError{Param: "preset", Value: name, Reason: fmt.Sprintf("must be one of %v", PresetNames())}
	}
	return p.Apply(c), nil
}

// PresetNames 按字母序返回预设名称
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
