package service

import (
	"image"

	"github.com/TIANLI0/CutoutKit/model"
	"gocv.io/x/gocv"
)

const (
	// MinContourArea 面积低于该值的轮廓视为噪点
	MinContourArea = 100.0

	simplifyBaseFactor = 0.08
)

// Contour 一个前景连通区域的外轮廓，闭合，顺序与追踪方向一致
type Contour []image.Point

// Polygon 简化后的轮廓
type Polygon []image.Point

// ContourExtractor 负责提取外轮廓并进行多边形简化
type ContourExtractor struct {
	minArea float64
}

func NewContourExtractor() *ContourExtractor {
	return &ContourExtractor{minArea: MinContourArea}
}

// Extract 提取二值掩码中所有面积不低于噪点阈值的外轮廓，内部孔洞不单独追踪
func (ce *ContourExtractor) Extract(mask gocv.Mat) []Contour {
	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxNone)
	defer contours.Close()

	result := make([]Contour, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		pv := contours.At(i)
		if gocv.ContourArea(pv) < ce.minArea {
			continue
		}
		result = append(result, Contour(pv.ToPoints()))
	}
	return result
}

// Largest 返回面积最大的轮廓，全部被过滤时 ok 为 false
func (ce *ContourExtractor) Largest(mask gocv.Mat) (Contour, bool) {
	var (
		best     Contour
		bestArea float64
	)
	for _, c := range ce.Extract(mask) {
		if area := c.Area(); best == nil || area > bestArea {
			best, bestArea = c, area
		}
	}
	return best, best != nil
}

// Simplify 使用 Douglas-Peucker 简化轮廓，epsilon = 0.08 / detailLevel × 周长，
// detailLevel 越大保留的顶点越多
func (ce *ContourExtractor) Simplify(c Contour, detailLevel float64) Polygon {
	if len(c) < 3 {
		return Polygon(append([]image.Point(nil), c...))
	}
	if detailLevel < model.MinDetailLevel {
		detailLevel = model.MinDetailLevel
	}

	pv := gocv.NewPointVectorFromPoints(c)
	defer pv.Close()

	epsilon := simplifyBaseFactor / detailLevel * gocv.ArcLength(pv, true)
	approx := gocv.ApproxPolyDP(pv, epsilon, true)
	defer approx.Close()

	return Polygon(approx.ToPoints())
}

// SimplifyAll 简化一组轮廓
func (ce *ContourExtractor) SimplifyAll(contours []Contour, detailLevel float64) []Polygon {
	polygons := make([]Polygon, 0, len(contours))
	for _, c := range contours {
		polygons = append(polygons, ce.Simplify(c, detailLevel))
	}
	return polygons
}

// DrawPolygons 在空白掩码上以闭合描边绘制多边形
func (ce *ContourExtractor) DrawPolygons(polygons []Polygon, rows, cols, strokeWidth int) gocv.Mat {
	border := newBlankMask(rows, cols)
	if strokeWidth <= 0 || len(polygons) == 0 {
		return border
	}

	pv := newPointsVector(polygons)
	defer pv.Close()
	gocv.Polylines(&border, pv, true, white, strokeWidth)
	return border
}

// FillPolygons 填充多边形内部，用于判断像素位于边框内侧还是外侧
func (ce *ContourExtractor) FillPolygons(polygons []Polygon, rows, cols int) gocv.Mat {
	inside := newBlankMask(rows, cols)
	if len(polygons) == 0 {
		return inside
	}

	pv := newPointsVector(polygons)
	defer pv.Close()
	gocv.FillPoly(&inside, pv, white)
	return inside
}

// Area 鞋带公式计算的轮廓面积
func (c Contour) Area() float64 {
	n := len(c)
	if n < 3 {
		return 0
	}
	sum := 0
	for i := 0; i < n; i++ {
		p, q := c[i], c[(i+1)%n]
		sum += p.X*q.Y - q.X*p.Y
	}
	if sum < 0 {
		sum = -sum
	}
	return float64(sum) / 2
}

// BoundingBox 计算一组轮廓的外接矩形
func BoundingBox(contours []Contour) model.BBox {
	var union image.Rectangle
	first := true
	for _, c := range contours {
		for _, p := range c {
			r := image.Rect(p.X, p.Y, p.X+1, p.Y+1)
			if first {
				union = r
				first = false
			} else {
				union = union.Union(r)
			}
		}
	}

	return model.BBox{
		X:      union.Min.X,
		Y:      union.Min.Y,
		Width:  union.Dx(),
		Height: union.Dy(),
	}
}
