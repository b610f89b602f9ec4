package handler

import (
	"fmt"
	"strconv"

	"github.com/TIANLI0/CutoutKit/model"
	"github.com/gin-gonic/gin"
)

// ParseEffectForm 以 base 为默认值，先应用 preset，再用表单中出现的字段覆盖
func ParseEffectForm(c *gin.Context, base model.EffectConfig) (model.EffectConfig, error) {
	cfg, err := base.WithPreset(c.PostForm("preset"))
	if err != nil {
		return base, err
	}

	ints := map[string]*int{
		"alpha_threshold":    &cfg.AlphaThreshold,
		"cut_length_min":     &cfg.CutLengthMin,
		"cut_length_max":     &cfg.CutLengthMax,
		"outline_thickness":  &cfg.OutlineThickness,
		"border_thickness":   &cfg.BorderThickness,
		"shadow_offset_x":    &cfg.ShadowOffsetX,
		"shadow_offset_y":    &cfg.ShadowOffsetY,
		"shadow_blur_radius": &cfg.ShadowBlurRadius,
	}
	floats := map[string]*float64{
		"edge_roughness":   &cfg.EdgeRoughness,
		"noise_scale":      &cfg.NoiseScale,
		"tear_radius":      &cfg.TearRadius,
		"edge_threshold":   &cfg.EdgeThreshold,
		"cut_frequency":    &cfg.CutFrequency,
		"cut_depth":        &cfg.CutDepth,
		"detail_level":     &cfg.DetailLevel,
		"shadow_intensity": &cfg.ShadowIntensity,
	}
	bools := map[string]*bool{
		"mask_morphology":        &cfg.MaskMorphology,
		"mask_smoothing":         &cfg.MaskSmoothing,
		"shadow_layered":         &cfg.ShadowLayered,
		"transparent_background": &cfg.TransparentBackground,
		"enhance":                &cfg.Enhance,
		"soft_edges":             &cfg.SoftEdges,
	}
	colors := map[string]*model.RGB{
		"background_color": &cfg.BackgroundColor,
		"outline_color":    &cfg.OutlineColor,
		"border_color":     &cfg.BorderColor,
	}

	for key, dst := range ints {
		if v, ok := c.GetPostForm(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return base, formError(key, v, err)
			}
			*dst = n
		}
	}
	for key, dst := range floats {
		if v, ok := c.GetPostForm(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return base, formError(key, v, err)
			}
			*dst = f
		}
	}
	for key, dst := range bools {
		if v, ok := c.GetPostForm(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return base, formError(key, v, err)
			}
			*dst = b
		}
	}
	for key, dst := range colors {
		if v, ok := c.GetPostForm(key); ok {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return base, formError(key, v, err)
			}
		}
	}

	if v, ok := c.GetPostForm("distortion_mode"); ok {
		cfg.DistortionMode = model.DistortionMode(v)
	}
	if v, ok := c.GetPostForm("composite_mode"); ok {
		cfg.CompositeMode = model.CompositeMode(v)
	}
	if v, ok := c.GetPostForm("noise_seed"); ok {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return base, formError("noise_seed", v, err)
		}
		cfg.NoiseSeed = seed
	}

	if err := cfg.Validate(); err != nil {
		return base, err
	}
	return cfg, nil
}

func formError(key, value string, err error) error {
	return &model.ParamError{Param: key, Value: value, Reason: fmt.Sprintf("cannot parse: %v", err)}
}
