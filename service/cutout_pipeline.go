package service

import (
	"fmt"
	"time"

	"github.com/TIANLI0/CutoutKit/model"
	"github.com/TIANLI0/CutoutKit/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// RenderResult 管线输出，调用方负责 Close
type RenderResult struct {
	Image       gocv.Mat
	BoundingBox model.BBox
	Contours    int
}

func (r *RenderResult) Close() {
	r.Image.Close()
}

// CutoutPipeline 按顺序执行掩码预处理、轮廓提取、边缘变形、投影和合成。
// 不在调用之间保存任何状态，可以为每张图片并行调用
type CutoutPipeline struct {
	maskProcessor *MaskProcessor
	extractor     *ContourExtractor
	distorter     *EdgeDistorter
	shadow        *ShadowSynthesizer
	compositor    *Compositor
}

func NewCutoutPipeline() *CutoutPipeline {
	maskProcessor := NewMaskProcessor()
	extractor := NewContourExtractor()
	return &CutoutPipeline{
		maskProcessor: maskProcessor,
		extractor:     extractor,
		distorter:     NewEdgeDistorter(extractor),
		shadow:        NewShadowSynthesizer(),
		compositor:    NewCompositor(maskProcessor, extractor),
	}
}

// Render 对BGR图像和同尺寸的前景掩码应用剪纸效果
func (p *CutoutPipeline) Render(img, mask gocv.Mat, cfg model.EffectConfig) (*RenderResult, error) {
	start := time.Now()

	cfg, err := prepareEffect(cfg)
	if err != nil {
		return nil, err
	}

	bgr, err := p.normalizeImage(img)
	if err != nil {
		return nil, err
	}
	defer bgr.Close()

	if mask.Empty() || mask.Channels() != 1 || !sameSize(bgr, mask) {
		return nil, &StageError{Stage: StageValidate, Param: "mask",
			Err: fmt.Errorf("%w: mask must be single channel %dx%d", ErrInvalidInput, bgr.Cols(), bgr.Rows())}
	}

	source := mask
	if cfg.MaskSmoothing {
		source = p.maskProcessor.SmoothStaircase(mask, cfg.AlphaThreshold)
		defer source.Close()
	}

	binary := p.maskProcessor.Condition(source, cfg.AlphaThreshold, ConditionOptions{
		Morphology: cfg.MaskMorphology,
	})
	defer binary.Close()

	distorted := p.distorter.Distort(binary, cfg)
	defer distorted.Close()

	contours := p.extractor.Extract(distorted)
	if len(contours) == 0 {
		utils.Logger.Debug("no contour above noise floor, using unmodified mask")
	}

	var out gocv.Mat
	if cfg.ResolvedCompositeMode() == model.CompositeBordered {
		shape := p.compositor.BorderedShape(distorted, cfg)
		defer shape.Close()

		shadow := p.shadow.Synthesize(shape.Interior, ShadowParamsFrom(cfg))
		defer shadow.Close()

		out, err = p.compositor.CompositeBordered(bgr, distorted, shape, shadow, cfg)
	} else {
		shadow := p.shadow.Synthesize(distorted, ShadowParamsFrom(cfg))
		defer shadow.Close()

		out, err = p.compositor.Composite(bgr, distorted, shadow, cfg)
	}
	if err != nil {
		return nil, err
	}

	utils.Logger.Debug("cutout rendered",
		zap.String("distortion", string(cfg.DistortionMode)),
		zap.String("composite", string(cfg.ResolvedCompositeMode())),
		zap.Int("contours", len(contours)),
		zap.Duration("duration", time.Since(start)))

	return &RenderResult{
		Image:       out,
		BoundingBox: BoundingBox(contours),
		Contours:    len(contours),
	}, nil
}

// normalizeImage 接受BGR或BGRA图像，统一转换为BGR副本
func (p *CutoutPipeline) normalizeImage(img gocv.Mat) (gocv.Mat, error) {
	if img.Empty() {
		return gocv.NewMat(), &StageError{Stage: StageValidate, Param: "image",
			Err: fmt.Errorf("%w: empty image", ErrInvalidInput)}
	}

	switch img.Channels() {
	case 3:
		return img.Clone(), nil
	case 4:
		bgr := gocv.NewMat()
		gocv.CvtColor(img, &bgr, gocv.ColorBGRAToBGR)
		return bgr, nil
	default:
		return gocv.NewMat(), &StageError{Stage: StageValidate, Param: "image",
			Err: fmt.Errorf("%w: unsupported channel count %d", ErrInvalidInput, img.Channels())}
	}
}
