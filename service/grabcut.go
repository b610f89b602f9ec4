package service

import (
	"context"
	"image"
	"time"

	"github.com/TIANLI0/CutoutKit/config"
	"github.com/TIANLI0/CutoutKit/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// GrabCut 掩码标签
const (
	gcBGD   uint8 = 0
	gcFGD   uint8 = 1
	gcPRBGD uint8 = 2
	gcPRFGD uint8 = 3
)

// GrabCutService 使用显著性初始化的GrabCut提取前景
type GrabCutService struct {
	iterations       int
	borderSize       int
	maxSize          int
	largestOnly      bool
	sceneAnalyzer    *SceneAnalyzer
	saliencyDetector *SaliencyDetector
	maskProcessor    *MaskProcessor
}

func NewGrabCutService(cfg *config.GrabCutConfig) *GrabCutService {
	return &GrabCutService{
		iterations:       cfg.Iterations,
		borderSize:       cfg.BorderSize,
		maxSize:          cfg.MaxSize,
		largestOnly:      cfg.LargestOnly,
		sceneAnalyzer:    NewSceneAnalyzer(),
		saliencyDetector: NewSaliencyDetector(),
		maskProcessor:    NewMaskProcessor(),
	}
}

// Extract 对BGR图像执行前景分割，返回原尺寸的前景掩码
func (s *GrabCutService) Extract(ctx context.Context, img gocv.Mat) (*Foreground, error) {
	if img.Empty() || img.Channels() != 3 {
		return nil, &StageError{Stage: StageExtract, Param: SourceGrabCut, Err: ErrInvalidInput}
	}

	startTime := time.Now()

	scaled, scale := s.smartResize(img, s.maxSize)
	defer scaled.Close()

	scene := s.sceneAnalyzer.Analyze(scaled)
	utils.Logger.Debug("scene analyzed",
		zap.String("level", string(scene.Level)),
		zap.Float64("edge_density", scene.EdgeDensity),
		zap.Float64("color_variance", scene.ColorVariance),
		zap.Bool("is_portrait", scene.IsPortrait))

	labels, err := s.segment(ctx, scaled, scene)
	if err != nil {
		return nil, err
	}
	defer labels.Close()

	mask := s.postprocess(labels, scaled, scene)
	if scale != 1.0 {
		restored := gocv.NewMat()
		gocv.Resize(mask, &restored, image.Point{X: img.Cols(), Y: img.Rows()}, 0, 0, gocv.InterpolationLinear)
		mask.Close()
		mask = s.maskProcessor.Binarize(restored, 128)
		restored.Close()
	}

	if s.largestOnly {
		largest := s.maskProcessor.KeepLargest(mask)
		mask.Close()
		mask = largest
	}

	if gocv.CountNonZero(mask) == 0 {
		mask.Close()
		return nil, &StageError{Stage: StageExtract, Param: SourceGrabCut, Err: ErrNoForeground}
	}

	utils.Logger.Info("foreground extracted",
		zap.String("source", SourceGrabCut),
		zap.String("scene", string(scene.Level)),
		zap.Float64("scale", scale),
		zap.Duration("duration", time.Since(startTime)))

	return &Foreground{Image: img.Clone(), Mask: mask, Source: SourceGrabCut}, nil
}

// segment 运行GrabCut并返回标签图。简单场景用矩形初始化，其余场景用显著性标签初始化并追加两轮细化
func (s *GrabCutService) segment(ctx context.Context, img gocv.Mat, scene SceneInfo) (gocv.Mat, error) {
	width, height := img.Cols(), img.Rows()

	var (
		rect   image.Rectangle
		labels gocv.Mat
		mode   = gocv.GCInitWithMask
	)
	if scene.Level == SceneSimple {
		border := s.borderSize
		if border < 10 {
			border = int(float64(width) * 0.05)
		}
		rect = image.Rect(border, border, width-border, height-border)
		labels = gocv.NewMat()
		mode = gocv.GCInitWithRect
	} else {
		saliency := s.saliencyDetector.Detect(img)
		labels = s.saliencyDetector.CreateMask(saliency, width, height)
		saliency.Close()
	}

	if err := ctx.Err(); err != nil {
		labels.Close()
		return gocv.NewMat(), err
	}

	bgdModel := gocv.NewMat()
	defer bgdModel.Close()
	fgdModel := gocv.NewMat()
	defer fgdModel.Close()

	gocv.GrabCut(img, &labels, rect, &bgdModel, &fgdModel, s.iterationsFor(scene.Level), mode)

	if scene.Level != SceneSimple {
		if err := ctx.Err(); err != nil {
			labels.Close()
			return gocv.NewMat(), err
		}
		gocv.GrabCut(img, &labels, image.Rectangle{}, &bgdModel, &fgdModel, 2, gocv.GCInitWithMask)
	}
	return labels, nil
}

// iterationsFor 场景越复杂迭代越多
func (s *GrabCutService) iterationsFor(level SceneLevel) int {
	switch level {
	case SceneSimple:
		return max(3, s.iterations-2)
	case ScenePortrait:
		return s.iterations + 1
	case SceneComplex:
		return s.iterations + 2
	default:
		return s.iterations
	}
}

// postprocess 标签转掩码，人像补全肤色区域，再做形态学优化和边缘细化
func (s *GrabCutService) postprocess(labels, img gocv.Mat, scene SceneInfo) gocv.Mat {
	mask := s.maskProcessor.ExtractForeground(labels)

	if scene.IsPortrait {
		enhanced := s.sceneAnalyzer.EnhancePortraitMask(mask, img)
		mask.Close()
		mask = enhanced
	}

	kernelSize := 3
	if scene.Level == SceneComplex || scene.Level == ScenePortrait {
		kernelSize = 5
	}
	optimized := s.maskProcessor.MorphologyOptimize(mask, kernelSize)
	mask.Close()
	mask = optimized

	if scene.Level != SceneSimple {
		refined := s.maskProcessor.RefineEdges(mask)
		mask.Close()
		mask = refined
	}
	return mask
}

// smartResize 智能缩放图像以适应最大尺寸
func (s *GrabCutService) smartResize(img gocv.Mat, maxSize int) (gocv.Mat, float64) {
	width := img.Cols()
	height := img.Rows()
	maxDim := max(width, height)
	if maxSize <= 0 || maxDim <= maxSize {
		return img.Clone(), 1.0
	}

	scale := float64(maxSize) / float64(maxDim)
	newWidth := int(float64(width) * scale)
	newHeight := int(float64(height) * scale)

	resized := gocv.NewMat()
	gocv.Resize(img, &resized, image.Point{X: newWidth, Y: newHeight}, 0, 0, gocv.InterpolationArea)

	return resized, scale
}
