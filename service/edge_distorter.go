package service

import (
	"errors"
	"fmt"
	"image"
	"math"
	"math/rand/v2"

	"github.com/TIANLI0/CutoutKit/model"
	"github.com/TIANLI0/CutoutKit/utils"
	"github.com/ojrac/opensimplex-go"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const (
	// 撕纸
	tearCannyLow      = 30
	tearCannyHigh     = 100
	tearEdgeDilations = 2
	tearStrength      = 2.0
	fiberStrength     = 0.3

	// 剪刀
	baseCutSpacing   = 8.0
	tangentWindow    = 5
	minTangentPoints = 2*tangentWindow + 1
	maxCutJitter     = math.Pi / 6
	insideProbe      = 3.0
	scissorStream    = 0x5c155042
)

var errDegenerateGeometry = errors.New("degenerate geometry")

// EdgeDistorter 负责生成撕纸或剪刀剪裁风格的变形掩码
type EdgeDistorter struct {
	extractor *ContourExtractor
}

func NewEdgeDistorter(extractor *ContourExtractor) *EdgeDistorter {
	return &EdgeDistorter{extractor: extractor}
}

// Distort 按配置的模式变形二值掩码。变形只是外观效果，任何内部失败都返回未变形掩码的副本
func (ed *EdgeDistorter) Distort(mask gocv.Mat, cfg model.EffectConfig) gocv.Mat {
	var (
		distorted gocv.Mat
		err       error
	)

	switch cfg.DistortionMode {
	case model.DistortionTornPaper:
		distorted, err = ed.TornPaper(mask, cfg)
	case model.DistortionScissorCut:
		distorted, err = ed.ScissorCut(mask, cfg)
	default:
		return mask.Clone()
	}

	if err != nil {
		utils.Logger.Warn("edge distortion skipped",
			zap.String("stage", StageDistort),
			zap.String("mode", string(cfg.DistortionMode)),
			zap.Error(err))
		distorted.Close()
		return mask.Clone()
	}
	return distorted
}

// TornPaper 在边缘 tearRadius 范围内用两层 OpenSimplex 噪声侵蚀或扩张掩码，
// edgeRoughness 为0时输出与输入完全相同
func (ed *EdgeDistorter) TornPaper(mask gocv.Mat, cfg model.EffectConfig) (gocv.Mat, error) {
	if cfg.EdgeRoughness <= 0 {
		return mask.Clone(), nil
	}
	if cfg.NoiseScale <= 0 || cfg.TearRadius <= 0 {
		return gocv.NewMat(), fmt.Errorf("torn paper: noise_scale=%v tear_radius=%v: %w",
			cfg.NoiseScale, cfg.TearRadius, errDegenerateGeometry)
	}

	rows, cols := mask.Rows(), mask.Cols()

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(mask, &edges, tearCannyLow, tearCannyHigh)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: 3, Y: 3})
	defer kernel.Close()
	for i := 0; i < tearEdgeDilations; i++ {
		gocv.Dilate(edges, &edges, kernel)
	}

	// 全黑或全白掩码没有边缘
	if gocv.CountNonZero(edges) == 0 {
		return mask.Clone(), nil
	}

	notEdges := gocv.NewMat()
	defer notEdges.Close()
	gocv.BitwiseNot(edges, &notEdges)

	dist := gocv.NewMat()
	defer dist.Close()
	labels := gocv.NewMat()
	defer labels.Close()
	gocv.DistanceTransform(notEdges, &dist, &labels, gocv.DistL2, gocv.DistanceMask5, gocv.DistanceLabelCComp)

	distances, err := dist.DataPtrFloat32()
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("torn paper: distance field: %w", err)
	}

	noise := opensimplex.New(cfg.NoiseSeed)
	src := maskBytes(mask)
	out := make([]byte, len(src))
	copy(out, src)

	scale := cfg.NoiseScale
	radius := cfg.TearRadius
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			i := y*cols + x
			d := float64(distances[i])
			if d > radius {
				continue
			}

			fx, fy := float64(x), float64(y)
			n1 := noise.Eval2(fx/scale, fy/scale)
			n2 := noise.Eval2(fx/(scale*0.5), fy/(scale*0.5)) * 0.5
			tear := (n1 + n2) * cfg.EdgeRoughness * (1.0 - d/radius)

			v := float64(src[i]) / 255.0
			switch {
			case tear < -cfg.EdgeThreshold:
				v *= math.Max(0, 1.0-math.Abs(tear)*tearStrength)
			case tear > cfg.EdgeThreshold:
				v = math.Min(1.0, v*(1.0+tear*fiberStrength))
			default:
				continue
			}
			out[i] = uint8(math.Round(v * 255.0))
		}
	}

	return matFromBytes(rows, cols, gocv.MatTypeCV8U, out)
}

// ScissorCut 沿最大轮廓按步长挑选剪口位置，向主体内部剪出逐渐变窄的缺口。
// cutFrequency × edgeRoughness 同时决定步长和每个位置的剪切概率
func (ed *EdgeDistorter) ScissorCut(mask gocv.Mat, cfg model.EffectConfig) (gocv.Mat, error) {
	density := cfg.CutFrequency * cfg.EdgeRoughness
	if density <= 0 {
		return mask.Clone(), nil
	}
	if cfg.CutLengthMax < cfg.CutLengthMin || cfg.CutLengthMin < 0 {
		return gocv.NewMat(), fmt.Errorf("scissor cut: cut_length [%d,%d]: %w",
			cfg.CutLengthMin, cfg.CutLengthMax, errDegenerateGeometry)
	}

	contour, ok := ed.extractor.Largest(mask)
	if !ok {
		utils.Logger.Debug("scissor cut: no contour above noise floor")
		return mask.Clone(), nil
	}

	rows, cols := mask.Rows(), mask.Cols()
	src := maskBytes(mask)
	values := make([]float64, len(src))
	for i, v := range src {
		values[i] = float64(v) / 255.0
	}

	rng := rand.New(rand.NewPCG(uint64(cfg.NoiseSeed), scissorStream))
	stride := max(1, int(math.Round(baseCutSpacing/density)))
	depth := math.Max(1, cfg.CutDepth)

	n := len(contour)
	degenerate := n < minTangentPoints
	globalAngle := rng.Float64() * 2 * math.Pi

	cuts := 0
	for i := 0; i < n; i += stride {
		if rng.Float64() >= density {
			continue
		}

		angle, ok := normalAngle(contour, i)
		if degenerate || !ok {
			angle = globalAngle
		}
		angle += (rng.Float64()*2 - 1) * maxCutJitter

		length := float64(cfg.CutLengthMin+rng.IntN(cfg.CutLengthMax-cfg.CutLengthMin+1)) * cfg.EdgeRoughness
		if length < 1 {
			continue
		}

		origin := contour[i]
		dx, dy := math.Cos(angle), math.Sin(angle)
		if !pointsInside(src, rows, cols, origin, dx, dy) && pointsInside(src, rows, cols, origin, -dx, -dy) {
			dx, dy = -dx, -dy
		}

		carve(values, rows, cols,
			float64(origin.X), float64(origin.Y),
			float64(origin.X)+dx*length, float64(origin.Y)+dy*length,
			depth)
		cuts++
	}

	utils.Logger.Debug("scissor cut applied",
		zap.Int("contour_points", n),
		zap.Int("stride", stride),
		zap.Int("cuts", cuts))

	out := make([]byte, len(values))
	for i, v := range values {
		out[i] = clampByte(math.Round(v * 255.0))
	}
	return matFromBytes(rows, cols, gocv.MatTypeCV8U, out)
}

// normalAngle 由前后 tangentWindow 个点估计切线方向，返回其法线角度
func normalAngle(contour Contour, i int) (float64, bool) {
	n := len(contour)
	prev := contour[(i-tangentWindow%n+n)%n]
	next := contour[(i+tangentWindow)%n]
	dx, dy := next.X-prev.X, next.Y-prev.Y
	if dx == 0 && dy == 0 {
		return 0, false
	}
	return math.Atan2(float64(dy), float64(dx)) + math.Pi/2, true
}

// pointsInside 判断从 origin 沿 (dx, dy) 前进 insideProbe 像素处是否为前景
func pointsInside(src []byte, rows, cols int, origin image.Point, dx, dy float64) bool {
	x := int(math.Round(float64(origin.X) + dx*insideProbe))
	y := int(math.Round(float64(origin.Y) + dy*insideProbe))
	if x < 0 || y < 0 || x >= cols || y >= rows {
		return false
	}
	return src[y*cols+x] > 127
}

// carve 沿线段衰减掩码，半径从起点的 depth 线性收窄到终点的1像素，
// 距离线段 d 的像素乘以 d/r
func carve(values []float64, rows, cols int, x0, y0, x1, y1, depth float64) {
	vx, vy := x1-x0, y1-y0
	lenSq := vx*vx + vy*vy
	if lenSq == 0 {
		return
	}

	pad := depth + 1
	minX := max(0, int(math.Floor(math.Min(x0, x1)-pad)))
	maxX := min(cols-1, int(math.Ceil(math.Max(x0, x1)+pad)))
	minY := max(0, int(math.Floor(math.Min(y0, y1)-pad)))
	maxY := min(rows-1, int(math.Ceil(math.Max(y0, y1)+pad)))

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			px, py := float64(x)-x0, float64(y)-y0
			t := math.Max(0, math.Min(1, (px*vx+py*vy)/lenSq))
			d := math.Hypot(px-t*vx, py-t*vy)
			r := depth + (1-depth)*t
			if d < r {
				values[y*cols+x] *= d / r
			}
		}
	}
}
