package service

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// newBlankMask 创建全零单通道掩码
func newBlankMask(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV8U)
}

// matFromBytes 由字节数据创建Mat，返回的Mat拥有独立的数据副本
func matFromBytes(rows, cols int, mt gocv.MatType, data []byte) (gocv.Mat, error) {
	view, err := gocv.NewMatFromBytes(rows, cols, mt, data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create mat %dx%d: %w", cols, rows, err)
	}
	defer view.Close()
	return view.Clone(), nil
}

// maskBytes 返回单通道掩码的像素副本，按行优先排列
func maskBytes(mask gocv.Mat) []byte {
	if mask.IsContinuous() {
		return mask.ToBytes()
	}
	c := mask.Clone()
	defer c.Close()
	return c.ToBytes()
}

// newPointsVector 将多边形转换为gocv点集，调用方负责Close
func newPointsVector[P ~[]image.Point](polygons []P) gocv.PointsVector {
	pts := make([][]image.Point, 0, len(polygons))
	for _, p := range polygons {
		if len(p) > 0 {
			pts = append(pts, []image.Point(p))
		}
	}
	return gocv.NewPointsVectorFromPoints(pts)
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

func sameSize(a, b gocv.Mat) bool {
	return a.Rows() == b.Rows() && a.Cols() == b.Cols()
}
