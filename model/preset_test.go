package model

import (
	"errors"
	"reflect"
	"testing"
)

func TestWithPreset(t *testing.T) {
	base := DefaultEffectConfig()

	tests := []struct {
		name      string
		roughness float64
		blur      int
	}{
		{PresetSubtle, 0.3, 15},
		{PresetModerate, 0.6, 25},
		{PresetDramatic, 0.9, 35},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := base.WithPreset(tt.name)
			if err != nil {
				t.Fatal(err)
			}
			if got.EdgeRoughness != tt.roughness || got.ShadowBlurRadius != tt.blur {
				t.Errorf("roughness/blur = %v/%d", got.EdgeRoughness, got.ShadowBlurRadius)
			}
			if got.DistortionMode != base.DistortionMode || got.BackgroundColor != base.BackgroundColor {
				t.Error("preset changed unrelated fields")
			}
			if err := got.Validate(); err != nil {
				t.Errorf("preset config invalid: %v", err)
			}
		})
	}

	same, err := base.WithPreset("")
	if err != nil || same != base {
		t.Errorf("empty preset = %+v, %v", same, err)
	}

	_, err = base.WithPreset("wild")
	var pe *ParamError
	if !errors.As(err, &pe) || pe.Param != "preset" {
		t.Errorf("unknown preset error = %v", err)
	}
}

func TestDefaultIsModerate(t *testing.T) {
	moderate, _ := DefaultEffectConfig().WithPreset(PresetModerate)
	if moderate != DefaultEffectConfig() {
		t.Error("default config differs from the moderate preset")
	}
}

func TestPresetNames(t *testing.T) {
	want := []string{PresetDramatic, PresetModerate, PresetSubtle}
	if got := PresetNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("PresetNames() = %v, want %v", got, want)
	}
}
