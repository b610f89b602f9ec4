package service

import (
	"image"

	"github.com/TIANLI0/CutoutKit/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// ConditionOptions 掩码预处理选项
type ConditionOptions struct {
	Morphology bool // 3x3 闭运算后开运算，去除孤立噪点并填补针孔
}

// MaskProcessor 负责处理图像掩码
type MaskProcessor struct{}

func NewMaskProcessor() *MaskProcessor {
	return &MaskProcessor{}
}

// Condition 将置信度掩码处理为只含0和255的二值掩码，threshold 超出 [0,255] 时钳制。
// 对结果再次调用得到相同的掩码
func (mp *MaskProcessor) Condition(mask gocv.Mat, threshold int, opts ConditionOptions) gocv.Mat {
	binary := mp.Binarize(mask, threshold)

	if opts.Morphology {
		optimized := mp.MorphologyOptimize(binary, 3)
		binary.Close()
		binary = optimized
	}

	return binary
}

// Binarize 大于等于阈值的像素置为255，其余置为0
func (mp *MaskProcessor) Binarize(mask gocv.Mat, threshold int) gocv.Mat {
	t := uint8(max(0, min(255, threshold)))

	data := maskBytes(mask)
	for i, v := range data {
		if v >= t {
			data[i] = 255
		} else {
			data[i] = 0
		}
	}

	binary, err := matFromBytes(mask.Rows(), mask.Cols(), gocv.MatTypeCV8U, data)
	if err != nil {
		utils.Logger.Error("failed to binarize mask", zap.Error(err))
		return newBlankMask(mask.Rows(), mask.Cols())
	}
	return binary
}

// SmoothStaircase 按阈值二值化后做5x5高斯平滑并在127处重新二值化，消除阶梯锯齿。
// 每次调用都会侵蚀细小结构，只在 Condition 之前对原始掩码执行一次
func (mp *MaskProcessor) SmoothStaircase(mask gocv.Mat, threshold int) gocv.Mat {
	binary := mp.Binarize(mask, threshold)
	defer binary.Close()
	return mp.Smooth(binary, 5, 1.0)
}

// Smooth 高斯平滑后重新二值化，ksize 为偶数时加一
func (mp *MaskProcessor) Smooth(mask gocv.Mat, ksize int, sigma float64) gocv.Mat {
	ksize = oddKernel(ksize)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(mask, &blurred, image.Point{X: ksize, Y: ksize}, sigma, sigma, gocv.BorderDefault)

	smoothed := gocv.NewMat()
	gocv.Threshold(blurred, &smoothed, 127, 255, gocv.ThresholdBinary)
	return smoothed
}

// MorphologyOptimize 先闭运算填补针孔，再开运算去除噪点
func (mp *MaskProcessor) MorphologyOptimize(mask gocv.Mat, kernelSize int) gocv.Mat {
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: kernelSize, Y: kernelSize})
	defer kernel.Close()

	closed := gocv.NewMat()
	gocv.MorphologyEx(mask, &closed, gocv.MorphClose, kernel)

	opened := gocv.NewMat()
	gocv.MorphologyEx(closed, &opened, gocv.MorphOpen, kernel)
	closed.Close()

	return opened
}

// SmoothSilhouette 用椭圆核闭运算两次后平滑，得到圆润的主体轮廓
func (mp *MaskProcessor) SmoothSilhouette(mask gocv.Mat) gocv.Mat {
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: 3, Y: 3})
	defer kernel.Close()

	closed := gocv.NewMat()
	defer closed.Close()
	gocv.MorphologyEx(mask, &closed, gocv.MorphClose, kernel)
	gocv.MorphologyEx(closed, &closed, gocv.MorphClose, kernel)

	return mp.Smooth(closed, 5, 1.0)
}

// Expand 用 (2r+1) 椭圆核膨胀掩码
func (mp *MaskProcessor) Expand(mask gocv.Mat, radius int) gocv.Mat {
	expanded := gocv.NewMat()
	if radius <= 0 {
		mask.CopyTo(&expanded)
		return expanded
	}

	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: radius*2 + 1, Y: radius*2 + 1})
	defer kernel.Close()
	gocv.Dilate(mask, &expanded, kernel)
	return expanded
}

// ExtractForeground 从GrabCut标签中提取前景（确定前景和可能前景）
func (mp *MaskProcessor) ExtractForeground(labels gocv.Mat) gocv.Mat {
	data := maskBytes(labels)
	for i, v := range data {
		if v == gcFGD || v == gcPRFGD {
			data[i] = 255
		} else {
			data[i] = 0
		}
	}

	fg, err := matFromBytes(labels.Rows(), labels.Cols(), gocv.MatTypeCV8U, data)
	if err != nil {
		utils.Logger.Error("failed to extract foreground labels", zap.Error(err))
		return newBlankMask(labels.Rows(), labels.Cols())
	}
	return fg
}

// RefineEdges 轻微膨胀并平滑前景边缘
func (mp *MaskProcessor) RefineEdges(mask gocv.Mat) gocv.Mat {
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: 2, Y: 2})
	defer kernel.Close()

	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(mask, &dilated, kernel)

	return mp.Smooth(dilated, 3, 0)
}

// KeepLargest 保留掩码中最大的连通区域，没有轮廓时返回副本
func (mp *MaskProcessor) KeepLargest(mask gocv.Mat) gocv.Mat {
	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	if contours.Size() == 0 {
		return mask.Clone()
	}

	maxArea := 0.0
	maxIndex := 0
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area > maxArea {
			maxArea = area
			maxIndex = i
		}
	}

	largest := newBlankMask(mask.Rows(), mask.Cols())
	gocv.DrawContours(&largest, contours, maxIndex, white, -1)
	return largest
}

// oddKernel 高斯核尺寸必须为正奇数
func oddKernel(k int) int {
	if k < 1 {
		return 1
	}
	if k%2 == 0 {
		return k + 1
	}
	return k
}
