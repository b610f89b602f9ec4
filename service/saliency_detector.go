package service

import (
	"image"

	"github.com/TIANLI0/CutoutKit/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const (
	saliencyBlurKernel  = 21
	saliencyRectKernel  = 21
	saliencyLabelKernel = 11
	saliencyRectPadding = 0.05
	saliencyLabelBorder = 0.03
)

// SaliencyDetector 根据梯度强度估计主体所在区域，为GrabCut提供初始化
type SaliencyDetector struct {
	extractor *ContourExtractor
}

func NewSaliencyDetector() *SaliencyDetector {
	return &SaliencyDetector{extractor: NewContourExtractor()}
}

// Detect 梯度幅值经大核模糊后做Otsu二值化，纹理密集的区域视为显著
func (sd *SaliencyDetector) Detect(img gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	gx := sobelAbs(gray, 1, 0)
	defer gx.Close()
	gy := sobelAbs(gray, 0, 1)
	defer gy.Close()

	gradient := gocv.NewMat()
	defer gradient.Close()
	gocv.AddWeighted(gx, 0.5, gy, 0.5, 0, &gradient)
	gocv.GaussianBlur(gradient, &gradient, image.Point{X: saliencyBlurKernel, Y: saliencyBlurKernel}, 0, 0, gocv.BorderDefault)

	saliency := gocv.NewMat()
	gocv.Threshold(gradient, &saliency, 0, 255, gocv.ThresholdOtsu)
	return saliency
}

// sobelAbs 一个方向的8位绝对梯度
func sobelAbs(gray gocv.Mat, dx, dy int) gocv.Mat {
	grad := gocv.NewMat()
	defer grad.Close()
	gocv.Sobel(gray, &grad, gocv.MatTypeCV16S, dx, dy, 3, 1, 0, gocv.BorderDefault)

	abs := gocv.NewMat()
	gocv.ConvertScaleAbs(grad, &abs, 1, 0)
	return abs
}

// ExtractRect 返回最大显著区域的外接矩形（带5%边距），没有显著区域时取中心80%
func (sd *SaliencyDetector) ExtractRect(saliency gocv.Mat, width, height int) image.Rectangle {
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: saliencyRectKernel, Y: saliencyRectKernel})
	defer kernel.Close()

	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(saliency, &dilated, kernel)

	frame := image.Rect(0, 0, width, height)
	largest, ok := sd.extractor.Largest(dilated)
	if !ok {
		border := int(float64(width) * 0.1)
		return frame.Inset(border)
	}

	box := BoundingBox([]Contour{largest})
	pad := int(float64(box.Width) * saliencyRectPadding)
	return image.Rect(box.X, box.Y, box.X+box.Width, box.Y+box.Height).Inset(-pad).Intersect(frame)
}

// CreateMask 生成GrabCut初始标签：边框为确定背景，显著区域为可能前景，其余为可能背景
func (sd *SaliencyDetector) CreateMask(saliency gocv.Mat, width, height int) gocv.Mat {
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: saliencyLabelKernel, Y: saliencyLabelKernel})
	defer kernel.Close()

	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(saliency, &dilated, kernel)
	salient := maskBytes(dilated)

	borderSize := int(float64(width) * saliencyLabelBorder)
	labels := make([]byte, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			switch {
			case salient[i] > 128:
				labels[i] = gcPRFGD
			case x < borderSize || x >= width-borderSize || y < borderSize || y >= height-borderSize:
				labels[i] = gcBGD
			default:
				labels[i] = gcPRBGD
			}
		}
	}

	mask, err := matFromBytes(height, width, gocv.MatTypeCV8U, labels)
	if err != nil {
		utils.Logger.Warn("failed to build grabcut labels", zap.Error(err))
		return gocv.NewMat()
	}
	return mask
}
