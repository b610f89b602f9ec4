package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DistortionMode 边缘变形方式
type DistortionMode string

const (
	DistortionNone       DistortionMode = "none"
	DistortionTornPaper  DistortionMode = "torn-paper"
	DistortionScissorCut DistortionMode = "scissor-cut"
)

// CompositeMode 合成方式
type CompositeMode string

const (
	// CompositeAuto 根据 TransparentBackground 选择 transparent 或 opaque
	CompositeAuto        CompositeMode = "auto"
	CompositeTransparent CompositeMode = "transparent"
	CompositeOpaque      CompositeMode = "opaque"
	CompositeBordered    CompositeMode = "bordered"
	CompositeOutline     CompositeMode = "outline"
)

const (
	MinDetailLevel     = 1.0
	MaxDetailLevel     = 30.0
	MaxShadowIntensity = 1.5
)

// ErrInvalidConfig 参数不合法且无法安全钳制
var ErrInvalidConfig = errors.New("invalid effect config")

// ParamError 描述被拒绝的参数
type ParamError struct {
	Param  string
	Value  any
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s=%v: %s", e.Param, e.Value, e.Reason)
}

func (e *ParamError) Unwrap() error {
	return ErrInvalidConfig
}

// RGB 颜色，JSON 和配置文件中使用 #rrggbb 形式
type RGB struct {
	R uint8
	G uint8
	B uint8
}

var (
	White = RGB{R: 255, G: 255, B: 255}
	Black = RGB{}
)

// ParseRGB 解析 "#RRGGBB"、"RRGGBB" 或 "#RGB"
func ParseRGB(s string) (RGB, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return RGB{}, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

func (c RGB) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c RGB) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *RGB) UnmarshalText(text []byte) error {
	parsed, err := ParseRGB(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// EffectConfig 剪纸效果的全部可调参数，每次请求创建一次，处理过程中只读
type EffectConfig struct {
	AlphaThreshold int  `json:"alpha_threshold" mapstructure:"alpha_threshold"`
	MaskMorphology bool `json:"mask_morphology" mapstructure:"mask_morphology"`
	MaskSmoothing  bool `json:"mask_smoothing" mapstructure:"mask_smoothing"`

	DistortionMode DistortionMode `json:"distortion_mode" mapstructure:"distortion_mode"`
	EdgeRoughness  float64        `json:"edge_roughness" mapstructure:"edge_roughness"`
	NoiseScale     float64        `json:"noise_scale" mapstructure:"noise_scale"`
	TearRadius     float64        `json:"tear_radius" mapstructure:"tear_radius"`
	EdgeThreshold  float64        `json:"edge_threshold" mapstructure:"edge_threshold"`
	CutLengthMin   int            `json:"cut_length_min" mapstructure:"cut_length_min"`
	CutLengthMax   int            `json:"cut_length_max" mapstructure:"cut_length_max"`
	CutFrequency   float64        `json:"cut_frequency" mapstructure:"cut_frequency"`
	CutDepth       float64        `json:"cut_depth" mapstructure:"cut_depth"`

	DetailLevel      float64 `json:"detail_level" mapstructure:"detail_level"`
	OutlineThickness int     `json:"outline_thickness" mapstructure:"outline_thickness"`
	BorderThickness  int     `json:"border_thickness" mapstructure:"border_thickness"`

	BackgroundColor RGB `json:"background_color" mapstructure:"background_color"`
	OutlineColor    RGB `json:"outline_color" mapstructure:"outline_color"`
	BorderColor     RGB `json:"border_color" mapstructure:"border_color"`

	ShadowOffsetX    int     `json:"shadow_offset_x" mapstructure:"shadow_offset_x"`
	ShadowOffsetY    int     `json:"shadow_offset_y" mapstructure:"shadow_offset_y"`
	ShadowBlurRadius int     `json:"shadow_blur_radius" mapstructure:"shadow_blur_radius"`
	ShadowIntensity  float64 `json:"shadow_intensity" mapstructure:"shadow_intensity"`
	ShadowLayered    bool    `json:"shadow_layered" mapstructure:"shadow_layered"`

	TransparentBackground bool          `json:"transparent_background" mapstructure:"transparent_background"`
	CompositeMode         CompositeMode `json:"composite_mode" mapstructure:"composite_mode"`
	Enhance               bool          `json:"enhance" mapstructure:"enhance"`
	SoftEdges             bool          `json:"soft_edges" mapstructure:"soft_edges"`

	NoiseSeed int64 `json:"noise_seed" mapstructure:"noise_seed"`
}

// DefaultEffectConfig 返回 moderate 预设对应的默认参数
func DefaultEffectConfig() EffectConfig {
	cfg := EffectConfig{
		AlphaThreshold:        200,
		MaskMorphology:        true,
		DistortionMode:        DistortionTornPaper,
		CutLengthMin:          6,
		CutLengthMax:          18,
		CutFrequency:          0.5,
		CutDepth:              4,
		DetailLevel:           5,
		OutlineThickness:      15,
		BorderThickness:       3,
		BackgroundColor:       White,
		OutlineColor:          White,
		BorderColor:           Black,
		ShadowLayered:         true,
		TransparentBackground: true,
		CompositeMode:         CompositeAuto,
		Enhance:               true,
		SoftEdges:             true,
		NoiseSeed:             42,
	}
	return Presets[PresetModerate].Apply(cfg)
}

// ResolvedCompositeMode 将 auto 解析为具体的合成方式
func (c EffectConfig) ResolvedCompositeMode() CompositeMode {
	if c.CompositeMode == CompositeAuto || c.CompositeMode == "" {
		if c.TransparentBackground {
			return CompositeTransparent
		}
		return CompositeOpaque
	}
	return c.CompositeMode
}

// Validate 拒绝没有安全钳制范围的参数
func (c EffectConfig) Validate() error {
	floats := []struct {
		name string
		v    float64
	}{
		{"edge_roughness", c.EdgeRoughness},
		{"noise_scale", c.NoiseScale},
		{"tear_radius", c.TearRadius},
		{"edge_threshold", c.EdgeThreshold},
		{"cut_frequency", c.CutFrequency},
		{"cut_depth", c.CutDepth},
		{"detail_level", c.DetailLevel},
		{"shadow_intensity", c.ShadowIntensity},
	}
	for _, f := range floats {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &ParamError{Param: f.name, Value: f.v, Reason: "must be finite"}
		}
	}

	switch c.DistortionMode {
	case DistortionNone, "":
	case DistortionTornPaper:
		if c.NoiseScale <= 0 {
			return &ParamError{Param: "noise_scale", Value: c.NoiseScale, Reason: "must be > 0"}
		}
		if c.TearRadius <= 0 {
			return &ParamError{Param: "tear_radius", Value: c.TearRadius, Reason: "must be > 0"}
		}
	case DistortionScissorCut:
		if c.CutLengthMin < 0 || c.CutLengthMax < c.CutLengthMin {
			return &ParamError{Param: "cut_length_max", Value: c.CutLengthMax,
				Reason: fmt.Sprintf("must be >= cut_length_min (%d) >= 0", c.CutLengthMin)}
		}
		if c.CutDepth <= 0 {
			return &ParamError{Param: "cut_depth", Value: c.CutDepth, Reason: "must be > 0"}
		}
	default:
		return &ParamError{Param: "distortion_mode", Value: c.DistortionMode, Reason: "unknown mode"}
	}

	switch c.CompositeMode {
	case CompositeAuto, "", CompositeTransparent, CompositeOpaque, CompositeBordered, CompositeOutline:
	default:
		return &ParamError{Param: "composite_mode", Value: c.CompositeMode, Reason: "unknown mode"}
	}

	if c.DetailLevel <= 0 {
		return &ParamError{Param: "detail_level", Value: c.DetailLevel, Reason: "must be > 0"}
	}
	if c.OutlineThickness < 0 {
		return &ParamError{Param: "outline_thickness", Value: c.OutlineThickness, Reason: "must be >= 0"}
	}
	if c.BorderThickness < 0 {
		return &ParamError{Param: "border_thickness", Value: c.BorderThickness, Reason: "must be >= 0"}
	}
	if c.ShadowBlurRadius < 0 {
		return &ParamError{Param: "shadow_blur_radius", Value: c.ShadowBlurRadius, Reason: "must be >= 0"}
	}
	return nil
}

// Normalize 将有安全范围的参数钳制到范围内，返回新的配置
func (c EffectConfig) Normalize() EffectConfig {
	c.AlphaThreshold = clampInt(c.AlphaThreshold, 0, 255)
	c.EdgeRoughness = clampFloat(c.EdgeRoughness, 0, 1)
	c.EdgeThreshold = clampFloat(c.EdgeThreshold, 0, 1)
	c.CutFrequency = clampFloat(c.CutFrequency, 0, 1)
	c.ShadowIntensity = clampFloat(c.ShadowIntensity, 0, MaxShadowIntensity)
	c.DetailLevel = clampFloat(c.DetailLevel, MinDetailLevel, MaxDetailLevel)
	if c.DistortionMode == "" {
		c.DistortionMode = DistortionNone
	}
	if c.CompositeMode == "" {
		c.CompositeMode = CompositeAuto
	}
	return c
}

// Prepare 先校验再钳制，管线入口只接受 Prepare 之后的配置
func (c EffectConfig) Prepare() (EffectConfig, error) {
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c.Normalize(), nil
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
