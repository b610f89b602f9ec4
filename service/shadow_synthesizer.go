package service

import (
	"image"
	"math"

	"github.com/TIANLI0/CutoutKit/model"
	"github.com/TIANLI0/CutoutKit/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// ShadowParams 投影参数
type ShadowParams struct {
	OffsetX    int
	OffsetY    int
	BlurRadius int
	Intensity  float64 // 0~1.5，大于1时投影接近不透明
	Layered    bool    // 叠加半偏移的第二层投影
}

// ShadowParamsFrom 从效果配置中取出投影参数
func ShadowParamsFrom(cfg model.EffectConfig) ShadowParams {
	return ShadowParams{
		OffsetX:    cfg.ShadowOffsetX,
		OffsetY:    cfg.ShadowOffsetY,
		BlurRadius: cfg.ShadowBlurRadius,
		Intensity:  cfg.ShadowIntensity,
		Layered:    cfg.ShadowLayered,
	}
}

// ShadowSynthesizer 负责生成偏移、模糊并按强度缩放的投影
type ShadowSynthesizer struct{}

func NewShadowSynthesizer() *ShadowSynthesizer {
	return &ShadowSynthesizer{}
}

// ShadowKernelSize 返回实际使用的高斯核尺寸，偶数加一
func ShadowKernelSize(blurRadius int) int {
	return oddKernel(blurRadius)
}

// Synthesize 生成投影掩码
func (ss *ShadowSynthesizer) Synthesize(mask gocv.Mat, p ShadowParams) gocv.Mat {
	rows, cols := mask.Rows(), mask.Cols()
	if p.Intensity <= 0 {
		return newBlankMask(rows, cols)
	}

	shadow := ss.translate(mask, p.OffsetX, p.OffsetY)
	if p.Layered {
		inner := ss.translate(mask, floorHalf(p.OffsetX), floorHalf(p.OffsetY))
		combined := gocv.NewMat()
		gocv.Max(shadow, inner, &combined)
		inner.Close()
		shadow.Close()
		shadow = combined
	}

	ksize := ShadowKernelSize(p.BlurRadius)
	if ksize > 1 {
		blurred := gocv.NewMat()
		gocv.GaussianBlur(shadow, &blurred, image.Point{X: ksize, Y: ksize}, 0, 0, gocv.BorderDefault)
		shadow.Close()
		shadow = blurred
	}
	defer shadow.Close()

	intensity := math.Min(p.Intensity, model.MaxShadowIntensity)
	data := maskBytes(shadow)
	for i, v := range data {
		data[i] = clampByte(float64(v) * intensity)
	}

	scaled, err := matFromBytes(rows, cols, gocv.MatTypeCV8U, data)
	if err != nil {
		utils.Logger.Warn("shadow skipped", zap.String("stage", StageShadow), zap.Error(err))
		return newBlankMask(rows, cols)
	}

	utils.Logger.Debug("shadow synthesized",
		zap.Int("kernel_size", ksize),
		zap.Float64("intensity", intensity))
	return scaled
}

// floorHalf 向下取整的 n/2，-5 得到 -3
func floorHalf(n int) int {
	return n >> 1
}

// translate 平移掩码，移出画面的部分丢弃，空出的部分填0
func (ss *ShadowSynthesizer) translate(mask gocv.Mat, dx, dy int) gocv.Mat {
	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV32F)
	defer m.Close()
	m.SetFloatAt(0, 0, 1)
	m.SetFloatAt(0, 1, 0)
	m.SetFloatAt(0, 2, float32(dx))
	m.SetFloatAt(1, 0, 0)
	m.SetFloatAt(1, 1, 1)
	m.SetFloatAt(1, 2, float32(dy))

	shifted := gocv.NewMat()
	gocv.WarpAffine(mask, &shifted, m, image.Point{X: mask.Cols(), Y: mask.Rows()})
	return shifted
}
