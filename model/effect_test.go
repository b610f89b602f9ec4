package model

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestParseRGB(t *testing.T) {
	tests := []struct {
		in      string
		want    RGB
		wantErr bool
	}{
		{"#ffffff", White, false},
		{"000000", Black, false},
		{"#FF8000", RGB{R: 255, G: 128, B: 0}, false},
		{" #0a0b0c ", RGB{R: 10, G: 11, B: 12}, false},
		{"#f80", RGB{R: 255, G: 136, B: 0}, false},
		{"#ff", RGB{}, true},
		{"#gggggg", RGB{}, true},
		{"", RGB{}, true},
	}

	for _, tt := range tests {
		got, err := ParseRGB(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRGB(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRGB(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRGBJSON(t *testing.T) {
	cfg := DefaultEffectConfig()
	cfg.BorderColor = RGB{R: 1, G: 2, B: 255}

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatal(err)
	}
	if got := fields["border_color"]; got != "#0102ff" {
		t.Errorf("border_color = %v, want #0102ff", got)
	}

	var decoded EffectConfig
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded != cfg {
		t.Errorf("decoded config differs: %+v", decoded)
	}
}

func TestResolvedCompositeMode(t *testing.T) {
	tests := []struct {
		mode        CompositeMode
		transparent bool
		want        CompositeMode
	}{
		{CompositeAuto, true, CompositeTransparent},
		{CompositeAuto, false, CompositeOpaque},
		{"", false, CompositeOpaque},
		{CompositeBordered, false, CompositeBordered},
		{CompositeOutline, true, CompositeOutline},
	}
	for _, tt := range tests {
		cfg := EffectConfig{CompositeMode: tt.mode, TransparentBackground: tt.transparent}
		if got := cfg.ResolvedCompositeMode(); got != tt.want {
			t.Errorf("%q transparent=%v resolved to %q, want %q", tt.mode, tt.transparent, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*EffectConfig)
		param  string
	}{
		{"defaults", func(*EffectConfig) {}, ""},
		{"nan roughness", func(c *EffectConfig) { c.EdgeRoughness = math.NaN() }, "edge_roughness"},
		{"infinite intensity", func(c *EffectConfig) { c.ShadowIntensity = math.Inf(1) }, "shadow_intensity"},
		{"zero noise scale", func(c *EffectConfig) { c.NoiseScale = 0 }, "noise_scale"},
		{"zero tear radius", func(c *EffectConfig) { c.TearRadius = 0 }, "tear_radius"},
		{"zero noise scale without tearing", func(c *EffectConfig) {
			c.DistortionMode = DistortionNone
			c.NoiseScale = 0
		}, ""},
		{"inverted cut lengths", func(c *EffectConfig) {
			c.DistortionMode = DistortionScissorCut
			c.CutLengthMin, c.CutLengthMax = 10, 5
		}, "cut_length_max"},
		{"zero cut depth", func(c *EffectConfig) {
			c.DistortionMode = DistortionScissorCut
			c.CutDepth = 0
		}, "cut_depth"},
		{"unknown distortion", func(c *EffectConfig) { c.DistortionMode = "crumple" }, "distortion_mode"},
		{"unknown composite", func(c *EffectConfig) { c.CompositeMode = "collage" }, "composite_mode"},
		{"zero detail", func(c *EffectConfig) { c.DetailLevel = 0 }, "detail_level"},
		{"negative detail", func(c *EffectConfig) { c.DetailLevel = -3 }, "detail_level"},
		{"negative outline", func(c *EffectConfig) { c.OutlineThickness = -1 }, "outline_thickness"},
		{"negative border", func(c *EffectConfig) { c.BorderThickness = -1 }, "border_thickness"},
		{"negative blur", func(c *EffectConfig) { c.ShadowBlurRadius = -1 }, "shadow_blur_radius"},
		{"threshold out of range is clamped later", func(c *EffectConfig) { c.AlphaThreshold = 900 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultEffectConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if tt.param == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}

			var pe *ParamError
			if !errors.As(err, &pe) {
				t.Fatalf("Validate() error = %v, want *ParamError", err)
			}
			if pe.Param != tt.param {
				t.Errorf("param = %s, want %s", pe.Param, tt.param)
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Error("ParamError does not unwrap to ErrInvalidConfig")
			}
		})
	}
}

func TestNormalizeClamps(t *testing.T) {
	cfg := EffectConfig{
		AlphaThreshold:  300,
		EdgeRoughness:   2,
		EdgeThreshold:   -1,
		CutFrequency:    5,
		ShadowIntensity: 3,
		DetailLevel:     100,
	}
	got := cfg.Normalize()

	if got.AlphaThreshold != 255 {
		t.Errorf("AlphaThreshold = %d", got.AlphaThreshold)
	}
	if got.EdgeRoughness != 1 || got.EdgeThreshold != 0 || got.CutFrequency != 1 {
		t.Errorf("roughness/threshold/frequency = %v/%v/%v", got.EdgeRoughness, got.EdgeThreshold, got.CutFrequency)
	}
	if got.ShadowIntensity != MaxShadowIntensity {
		t.Errorf("ShadowIntensity = %v", got.ShadowIntensity)
	}
	if got.DetailLevel != MaxDetailLevel {
		t.Errorf("DetailLevel = %v", got.DetailLevel)
	}
	if got.DistortionMode != DistortionNone || got.CompositeMode != CompositeAuto {
		t.Errorf("modes = %q/%q", got.DistortionMode, got.CompositeMode)
	}

	small := EffectConfig{DetailLevel: 0.2}.Normalize()
	if small.DetailLevel != MinDetailLevel {
		t.Errorf("DetailLevel = %v, want %v", small.DetailLevel, MinDetailLevel)
	}
}

func TestPrepare(t *testing.T) {
	cfg := DefaultEffectConfig()
	cfg.AlphaThreshold = -20
	prepared, err := cfg.Prepare()
	if err != nil {
		t.Fatal(err)
	}
	if prepared.AlphaThreshold != 0 {
		t.Errorf("AlphaThreshold = %d, want 0", prepared.AlphaThreshold)
	}

	cfg.DetailLevel = 0
	if _, err := cfg.Prepare(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Prepare() error = %v, want ErrInvalidConfig", err)
	}
}
