package service

import (
	"context"
	"fmt"

	"github.com/TIANLI0/CutoutKit/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const (
	SourceAlpha   = "alpha"
	SourceGrabCut = "grabcut"
)

// Foreground 前景提取结果：BGR图像和同尺寸的前景置信度掩码
type Foreground struct {
	Image  gocv.Mat
	Mask   gocv.Mat
	Source string
}

func (f *Foreground) Close() {
	f.Image.Close()
	f.Mask.Close()
}

// ForegroundExtractor 前景提取服务
type ForegroundExtractor interface {
	Extract(ctx context.Context, img gocv.Mat) (*Foreground, error)
}

// AlphaExtractor 直接使用图片自带的透明通道作为前景掩码（已去除背景的PNG）
type AlphaExtractor struct{}

func NewAlphaExtractor() *AlphaExtractor {
	return &AlphaExtractor{}
}

// HasTransparency 判断图片是否带有非全不透明的alpha通道
func (ae *AlphaExtractor) HasTransparency(img gocv.Mat) bool {
	if img.Channels() != 4 {
		return false
	}
	channels := gocv.Split(img)
	defer closeAll(channels)

	minVal, _, _, _ := gocv.MinMaxLoc(channels[3])
	return minVal < 255
}

func (ae *AlphaExtractor) Extract(ctx context.Context, img gocv.Mat) (*Foreground, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img.Channels() != 4 {
		return nil, &StageError{Stage: StageExtract, Param: "image",
			Err: fmt.Errorf("%w: alpha extraction needs 4 channels, got %d", ErrInvalidInput, img.Channels())}
	}

	channels := gocv.Split(img)
	defer closeAll(channels)

	alpha := channels[3]
	if gocv.CountNonZero(alpha) == 0 {
		return nil, &StageError{Stage: StageExtract, Param: SourceAlpha, Err: ErrNoForeground}
	}

	bgr := gocv.NewMat()
	gocv.CvtColor(img, &bgr, gocv.ColorBGRAToBGR)

	return &Foreground{Image: bgr, Mask: alpha.Clone(), Source: SourceAlpha}, nil
}

// AutoExtractor 有透明通道时使用透明通道，否则交给 fallback（通常是GrabCut）
type AutoExtractor struct {
	alpha    *AlphaExtractor
	fallback ForegroundExtractor
}

func NewAutoExtractor(fallback ForegroundExtractor) *AutoExtractor {
	return &AutoExtractor{
		alpha:    NewAlphaExtractor(),
		fallback: fallback,
	}
}

func (ae *AutoExtractor) Extract(ctx context.Context, img gocv.Mat) (*Foreground, error) {
	if ae.alpha.HasTransparency(img) {
		utils.Logger.Debug("using embedded alpha channel as foreground")
		return ae.alpha.Extract(ctx, img)
	}
	if ae.fallback == nil {
		return nil, &StageError{Stage: StageExtract, Err: ErrNoForeground}
	}

	src := img
	if img.Channels() == 4 {
		bgr := gocv.NewMat()
		defer bgr.Close()
		gocv.CvtColor(img, &bgr, gocv.ColorBGRAToBGR)
		src = bgr
	}

	fg, err := ae.fallback.Extract(ctx, src)
	if err != nil {
		utils.Logger.Warn("foreground extraction failed", zap.Error(err))
		return nil, err
	}
	return fg, nil
}

func closeAll(mats []gocv.Mat) {
	for i := range mats {
		mats[i].Close()
	}
}
