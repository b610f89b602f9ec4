package service

import (
	"fmt"
	"image"
	"math"

	"github.com/TIANLI0/CutoutKit/model"
	"gocv.io/x/gocv"
)

const (
	contrastGain       = 1.1
	contrastOffset     = -12.0
	saturationGain     = 1.15
	shadowAlphaDamping = 0.6
	shadowDarkening    = 1.5
	presenceCutoff     = 0.1 * 255
	borderSmoothKernel = 7
	borderSmoothSigma  = 2.0
)

// BorderedShape 带边框剪纸的外形：多边形内部为不透明区域，Border 为多边形描边
type BorderedShape struct {
	Interior gocv.Mat
	Border   gocv.Mat
}

func (s *BorderedShape) Close() {
	s.Interior.Close()
	s.Border.Close()
}

// Compositor 负责将主体、描边、投影和背景合成为最终图像
type Compositor struct {
	maskProcessor *MaskProcessor
	extractor     *ContourExtractor
}

func NewCompositor(maskProcessor *MaskProcessor, extractor *ContourExtractor) *Compositor {
	return &Compositor{
		maskProcessor: maskProcessor,
		extractor:     extractor,
	}
}

// Composite 按 cfg 的合成方式输出BGR或BGRA图像。
// bordered 模式会在内部计算外形，管线中应使用 CompositeBordered 复用已计算的外形
func (c *Compositor) Composite(img, subject, shadow gocv.Mat, cfg model.EffectConfig) (gocv.Mat, error) {
	if err := checkLayers(img, subject, shadow); err != nil {
		return gocv.NewMat(), err
	}

	switch mode := cfg.ResolvedCompositeMode(); mode {
	case model.CompositeTransparent:
		return c.compositeBase(img, subject, shadow, cfg, true)
	case model.CompositeOpaque:
		return c.compositeBase(img, subject, shadow, cfg, false)
	case model.CompositeOutline:
		return c.CompositeOutline(img, subject, shadow, cfg)
	case model.CompositeBordered:
		shape := c.BorderedShape(subject, cfg)
		defer shape.Close()
		return c.CompositeBordered(img, subject, shape, shadow, cfg)
	default:
		return gocv.NewMat(), &StageError{Stage: StageComposite, Param: "composite_mode",
			Err: fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, mode)}
	}
}

// Enhance 让图像看起来更像印刷品：对比度×1.1-12，HSV饱和度×1.15
func (c *Compositor) Enhance(img gocv.Mat) (gocv.Mat, error) {
	rows, cols := img.Rows(), img.Cols()

	data := maskBytes(img)
	for i, v := range data {
		data[i] = clampByte(float64(v)*contrastGain + contrastOffset)
	}
	contrasted, err := matFromBytes(rows, cols, gocv.MatTypeCV8UC3, data)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer contrasted.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(contrasted, &hsv, gocv.ColorBGRToHSV)

	hsvData := maskBytes(hsv)
	for i := 1; i < len(hsvData); i += 3 {
		hsvData[i] = clampByte(math.Round(float64(hsvData[i]) * saturationGain))
	}
	saturated, err := matFromBytes(rows, cols, gocv.MatTypeCV8UC3, hsvData)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer saturated.Close()

	enhanced := gocv.NewMat()
	gocv.CvtColor(saturated, &enhanced, gocv.ColorHSVToBGR)
	return enhanced, nil
}

// BorderedShape 平滑主体、膨胀出白色描边环，再对主体+描边的整体做多边形简化。
// 没有可用轮廓时退回到平滑后的外形且不画边框
func (c *Compositor) BorderedShape(subject gocv.Mat, cfg model.EffectConfig) BorderedShape {
	rows, cols := subject.Rows(), subject.Cols()

	smoothed := c.maskProcessor.SmoothSilhouette(subject)
	defer smoothed.Close()
	expanded := c.maskProcessor.Expand(smoothed, cfg.OutlineThickness)
	defer expanded.Close()
	withOutline := c.maskProcessor.SmoothSilhouette(expanded)
	defer withOutline.Close()
	shape := c.maskProcessor.Smooth(withOutline, borderSmoothKernel, borderSmoothSigma)
	defer shape.Close()

	polygons := c.extractor.SimplifyAll(c.extractor.Extract(shape), cfg.DetailLevel)
	if len(polygons) == 0 {
		return BorderedShape{Interior: shape.Clone(), Border: newBlankMask(rows, cols)}
	}

	interior := c.extractor.FillPolygons(polygons, rows, cols)
	border := c.extractor.DrawPolygons(polygons, rows, cols, cfg.BorderThickness)
	gocv.BitwiseOr(interior, border, &interior)

	return BorderedShape{Interior: interior, Border: border}
}

// CompositeBordered 多边形内部不透明：边框像素为 BorderColor，主体像素来自图像，
// 其余为 OutlineColor；多边形外部完全透明，非透明背景时铺背景色并叠加投影
func (c *Compositor) CompositeBordered(img, subject gocv.Mat, shape BorderedShape, shadow gocv.Mat, cfg model.EffectConfig) (gocv.Mat, error) {
	if err := checkLayers(img, subject, shadow); err != nil {
		return gocv.NewMat(), err
	}

	rgb, err := c.subjectPixels(img, cfg)
	if err != nil {
		return gocv.NewMat(), err
	}
	subj := maskBytes(subject)
	inside := maskBytes(shape.Interior)
	border := maskBytes(shape.Border)
	shade := maskBytes(shadow)

	transparent := cfg.TransparentBackground
	channels := 3
	if transparent {
		channels = 4
	}
	out := make([]byte, len(subj)*channels)

	for i := range subj {
		o := i * channels
		var px [3]byte
		switch {
		case inside[i] == 0:
			if transparent {
				continue
			}
			px = shadowedBackground(cfg.BackgroundColor, shade[i])
		case border[i] > 0 && cfg.BorderThickness > 0:
			px = bgr(cfg.BorderColor)
		case subj[i] > 127:
			px = [3]byte{rgb[i*3], rgb[i*3+1], rgb[i*3+2]}
		default:
			px = bgr(cfg.OutlineColor)
		}
		copy(out[o:o+3], px[:])
		if transparent {
			out[o+3] = 255
		}
	}

	return matFromBytes(subject.Rows(), subject.Cols(), matType(channels), out)
}

// CompositeOutline 在基础合成结果上用 OutlineColor 描出简化后的多边形轮廓
func (c *Compositor) CompositeOutline(img, subject, shadow gocv.Mat, cfg model.EffectConfig) (gocv.Mat, error) {
	base, err := c.compositeBase(img, subject, shadow, cfg, cfg.TransparentBackground)
	if err != nil {
		return gocv.NewMat(), err
	}
	if cfg.OutlineThickness <= 0 {
		return base, nil
	}
	defer base.Close()

	polygons := c.extractor.SimplifyAll(c.extractor.Extract(subject), cfg.DetailLevel)
	stroke := c.extractor.DrawPolygons(polygons, subject.Rows(), subject.Cols(), cfg.OutlineThickness)
	defer stroke.Close()

	channels := base.Channels()
	out := maskBytes(base)
	strokeData := maskBytes(stroke)
	color := bgr(cfg.OutlineColor)
	for i, v := range strokeData {
		if v == 0 {
			continue
		}
		o := i * channels
		copy(out[o:o+3], color[:])
		if channels == 4 {
			out[o+3] = 255
		}
	}

	return matFromBytes(base.Rows(), base.Cols(), matType(channels), out)
}

// compositeBase 透明模式：alpha 取主体掩码，主体缺失而投影存在处取 投影×0.6；
// 不透明模式：背景色减去 投影×1.5 后按主体掩码（可选柔化）混合主体
func (c *Compositor) compositeBase(img, subject, shadow gocv.Mat, cfg model.EffectConfig, transparent bool) (gocv.Mat, error) {
	rgb, err := c.subjectPixels(img, cfg)
	if err != nil {
		return gocv.NewMat(), err
	}
	subj := maskBytes(subject)
	shade := maskBytes(shadow)
	rows, cols := subject.Rows(), subject.Cols()

	if transparent {
		out := make([]byte, len(subj)*4)
		for i, m := range subj {
			alpha := m
			if float64(m) < presenceCutoff && float64(shade[i]) > presenceCutoff {
				alpha = clampByte(float64(shade[i]) * shadowAlphaDamping)
			}
			copy(out[i*4:i*4+3], rgb[i*3:i*3+3])
			out[i*4+3] = alpha
		}
		return matFromBytes(rows, cols, gocv.MatTypeCV8UC4, out)
	}

	weights := subj
	if cfg.SoftEdges {
		soft := gocv.NewMat()
		gocv.GaussianBlur(subject, &soft, image.Point{X: 3, Y: 3}, 0, 0, gocv.BorderDefault)
		weights = maskBytes(soft)
		soft.Close()
	}

	out := make([]byte, len(subj)*3)
	for i, m := range weights {
		bg := shadowedBackground(cfg.BackgroundColor, shade[i])
		w := float64(m) / 255.0
		for ch := 0; ch < 3; ch++ {
			out[i*3+ch] = clampByte(math.Round(float64(bg[ch])*(1-w) + float64(rgb[i*3+ch])*w))
		}
	}
	return matFromBytes(rows, cols, gocv.MatTypeCV8UC3, out)
}

// subjectPixels 返回主体的BGR像素，按配置决定是否增强
func (c *Compositor) subjectPixels(img gocv.Mat, cfg model.EffectConfig) ([]byte, error) {
	if !cfg.Enhance {
		return maskBytes(img), nil
	}
	enhanced, err := c.Enhance(img)
	if err != nil {
		return nil, &StageError{Stage: StageComposite, Param: "enhance", Err: err}
	}
	defer enhanced.Close()
	return maskBytes(enhanced), nil
}

// shadowedBackground 背景色减去投影贡献，结果裁剪到 [0,255]，按BGR顺序返回
func shadowedBackground(bg model.RGB, shadow uint8) [3]byte {
	s := float64(shadow) * shadowDarkening
	return [3]byte{
		clampByte(float64(bg.B) - s),
		clampByte(float64(bg.G) - s),
		clampByte(float64(bg.R) - s),
	}
}

func bgr(c model.RGB) [3]byte {
	return [3]byte{c.B, c.G, c.R}
}

func matType(channels int) gocv.MatType {
	if channels == 4 {
		return gocv.MatTypeCV8UC4
	}
	return gocv.MatTypeCV8UC3
}

func checkLayers(img, subject, shadow gocv.Mat) error {
	if img.Channels() != 3 {
		return &StageError{Stage: StageComposite, Param: "image",
			Err: fmt.Errorf("%w: expected 3 channels, got %d", ErrInvalidInput, img.Channels())}
	}
	if !sameSize(img, subject) || !sameSize(img, shadow) {
		return &StageError{Stage: StageComposite, Param: "mask",
			Err: fmt.Errorf("%w: layer sizes differ", ErrInvalidInput)}
	}
	return nil
}
