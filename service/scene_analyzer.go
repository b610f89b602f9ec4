package service

import (
	"image"

	"gocv.io/x/gocv"
)

// SceneLevel 场景复杂度
type SceneLevel string

const (
	SceneSimple   SceneLevel = "simple"
	SceneMedium   SceneLevel = "medium"
	SceneComplex  SceneLevel = "complex"
	ScenePortrait SceneLevel = "portrait"
)

// 肤色在YCrCb空间中的范围
var (
	skinLower = gocv.Scalar{Val1: 0, Val2: 133, Val3: 77, Val4: 0}
	skinUpper = gocv.Scalar{Val1: 255, Val2: 173, Val3: 127, Val4: 255}
)

const portraitSkinRatio = 0.15

// SceneInfo 场景分析结果
type SceneInfo struct {
	Level         SceneLevel
	EdgeDensity   float64
	ColorVariance float64
	IsPortrait    bool
}

// SceneAnalyzer 根据边缘密度、颜色方差和肤色比例判断场景复杂度，决定GrabCut迭代策略
type SceneAnalyzer struct{}

func NewSceneAnalyzer() *SceneAnalyzer {
	return &SceneAnalyzer{}
}

func (sa *SceneAnalyzer) Analyze(img gocv.Mat) SceneInfo {
	info := SceneInfo{
		EdgeDensity:   sa.edgeDensity(img),
		ColorVariance: sa.colorVariance(img),
		IsPortrait:    sa.IsPortrait(img),
	}

	switch {
	case info.IsPortrait:
		info.Level = ScenePortrait
	case info.EdgeDensity < 0.05 && info.ColorVariance < 30:
		info.Level = SceneSimple
	case info.EdgeDensity > 0.15 || info.ColorVariance > 60:
		info.Level = SceneComplex
	default:
		info.Level = SceneMedium
	}
	return info
}

// IsPortrait 肤色像素超过15%时视为人像
func (sa *SceneAnalyzer) IsPortrait(img gocv.Mat) bool {
	skin := sa.DetectSkin(img)
	defer skin.Close()

	total := float64(img.Rows() * img.Cols())
	if total == 0 {
		return false
	}
	return float64(gocv.CountNonZero(skin))/total > portraitSkinRatio
}

// DetectSkin 返回肤色区域掩码
func (sa *SceneAnalyzer) DetectSkin(img gocv.Mat) gocv.Mat {
	ycrcb := gocv.NewMat()
	defer ycrcb.Close()
	gocv.CvtColor(img, &ycrcb, gocv.ColorBGRToYCrCb)

	skin := gocv.NewMat()
	gocv.InRangeWithScalar(ycrcb, skinLower, skinUpper, &skin)

	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: 5, Y: 5})
	defer kernel.Close()

	gocv.MorphologyEx(skin, &skin, gocv.MorphClose, kernel)
	gocv.MorphologyEx(skin, &skin, gocv.MorphOpen, kernel)
	return skin
}

// EnhancePortraitMask 将膨胀后的肤色区域并入前景，避免手臂、面部被误判为背景
func (sa *SceneAnalyzer) EnhancePortraitMask(mask, img gocv.Mat) gocv.Mat {
	skin := sa.DetectSkin(img)
	defer skin.Close()

	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: 15, Y: 15})
	defer kernel.Close()

	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(skin, &dilated, kernel)

	enhanced := gocv.NewMat()
	gocv.BitwiseOr(mask, dilated, &enhanced)
	return enhanced
}

func (sa *SceneAnalyzer) edgeDensity(img gocv.Mat) float64 {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, 50, 150)

	total := float64(img.Rows() * img.Cols())
	if total == 0 {
		return 0
	}
	return float64(gocv.CountNonZero(edges)) / total
}

// colorVariance Lab空间各通道标准差的均值
func (sa *SceneAnalyzer) colorVariance(img gocv.Mat) float64 {
	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(img, &lab, gocv.ColorBGRToLab)

	mean := gocv.NewMat()
	stddev := gocv.NewMat()
	defer mean.Close()
	defer stddev.Close()
	gocv.MeanStdDev(lab, &mean, &stddev)

	if stddev.Rows() == 0 {
		return 0
	}
	variance := 0.0
	for i := 0; i < stddev.Rows(); i++ {
		variance += stddev.GetDoubleAt(i, 0)
	}
	return variance / float64(stddev.Rows())
}
