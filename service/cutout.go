package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/TIANLI0/CutoutKit/config"
	"github.com/TIANLI0/CutoutKit/model"
	"github.com/TIANLI0/CutoutKit/utils"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Rendered 一次处理的PNG输出
type Rendered struct {
	PNG         []byte
	Width       int
	Height      int
	Channels    int
	BoundingBox model.BBox
	Source      string
}

// CutoutService 负责解码、前景提取、剪纸渲染和编码，并限制同时处理的图片数量
type CutoutService struct {
	pipeline     *CutoutPipeline
	extractor    ForegroundExtractor
	cache        ResultCache
	semaphore    chan struct{}
	queueTimeout time.Duration
}

func NewCutoutService(cfg *config.CutoutConfig, extractor ForegroundExtractor, cache ResultCache) *CutoutService {
	return &CutoutService{
		pipeline:     NewCutoutPipeline(),
		extractor:    extractor,
		cache:        cache,
		semaphore:    make(chan struct{}, max(1, cfg.MaxConcurrent)),
		queueTimeout: cfg.QueueTimeout,
	}
}

// CacheKey 由图片MD5和规范化后参数的MD5组成
func CacheKey(imageMD5 string, effect model.EffectConfig) (string, error) {
	cfgHash, err := utils.JSONMD5(effect)
	if err != nil {
		return "", err
	}
	return imageMD5 + "-" + cfgHash[:12], nil
}

// Process 处理上传的图片数据，命中缓存时直接返回
func (s *CutoutService) Process(ctx context.Context, data []byte, effect model.EffectConfig) (*model.CutoutResult, error) {
	effect, err := prepareEffect(effect)
	if err != nil {
		return nil, err
	}

	md5 := utils.BytesMD5(data)
	key, err := CacheKey(md5, effect)
	if err != nil {
		return nil, err
	}

	if cached := s.lookup(ctx, key); cached != nil {
		return cached, nil
	}

	rendered, err := s.Render(ctx, data, effect)
	if err != nil {
		return nil, err
	}

	result := &model.CutoutResult{
		Key:         key,
		MD5:         md5,
		Width:       rendered.Width,
		Height:      rendered.Height,
		Channels:    rendered.Channels,
		BoundingBox: rendered.BoundingBox,
		Image:       base64.StdEncoding.EncodeToString(rendered.PNG),
		Config:      effect,
		Timestamp:   time.Now().Unix(),
	}

	if s.cache != nil {
		if err := s.cache.SetCutout(ctx, key, result); err != nil {
			utils.Logger.Warn("failed to set cache", zap.String("key", key), zap.Error(err))
		}
	}
	return result, nil
}

// Get 按缓存键读取结果，未找到时返回 nil, nil
func (s *CutoutService) Get(ctx context.Context, key string) (*model.CutoutResult, error) {
	if s.cache == nil {
		return nil, nil
	}
	return s.cache.GetCutout(ctx, key)
}

// Render 解码 → 前景提取 → 剪纸渲染 → PNG编码，不使用缓存
func (s *CutoutService) Render(ctx context.Context, data []byte, effect model.EffectConfig) (*Rendered, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	startTime := time.Now()

	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	fg, err := s.extractor.Extract(ctx, img)
	if err != nil {
		return nil, err
	}
	defer fg.Close()

	result, err := s.pipeline.Render(fg.Image, fg.Mask, effect)
	if err != nil {
		return nil, err
	}
	defer result.Close()

	png, err := EncodePNG(result.Image)
	if err != nil {
		return nil, err
	}

	utils.Logger.Info("cutout processed",
		zap.String("source", fg.Source),
		zap.Int("width", result.Image.Cols()),
		zap.Int("height", result.Image.Rows()),
		zap.Int("contours", result.Contours),
		zap.Duration("duration", time.Since(startTime)))

	return &Rendered{
		PNG:         png,
		Width:       result.Image.Cols(),
		Height:      result.Image.Rows(),
		Channels:    result.Image.Channels(),
		BoundingBox: result.BoundingBox,
		Source:      fg.Source,
	}, nil
}

// Preview 将结果缩放为不超过 size×size 的PNG缩略图
func (s *CutoutService) Preview(result *model.CutoutResult, size int) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(result.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cached image: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeImage, err)
	}

	thumb := imaging.Fit(img, size, size, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG); err != nil {
		return nil, &StageError{Stage: StageEncode, Param: "preview", Err: err}
	}
	return buf.Bytes(), nil
}

// acquire 等待处理名额，超过排队时间返回 ErrQueueFull
func (s *CutoutService) acquire(ctx context.Context) (func(), error) {
	waitCtx := ctx
	if s.queueTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.queueTimeout)
		defer cancel()
	}

	select {
	case s.semaphore <- struct{}{}:
		return func() { <-s.semaphore }, nil
	case <-waitCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrQueueFull
	}
}

func (s *CutoutService) lookup(ctx context.Context, key string) *model.CutoutResult {
	if s.cache == nil {
		return nil
	}
	cached, err := s.cache.GetCutout(ctx, key)
	if err != nil {
		utils.Logger.Warn("failed to get cache", zap.Error(err))
		return nil
	}
	if cached != nil {
		utils.Logger.Info("cache hit", zap.String("cache_key", key))
	}
	return cached
}

func prepareEffect(effect model.EffectConfig) (model.EffectConfig, error) {
	prepared, err := effect.Prepare()
	if err != nil {
		var pe *model.ParamError
		if errors.As(err, &pe) {
			return effect, &StageError{Stage: StageValidate, Param: pe.Param, Err: err}
		}
		return effect, &StageError{Stage: StageValidate, Err: err}
	}
	return prepared, nil
}

// DecodeImage 解码图片数据，保留alpha通道，灰度图转换为BGR，16位图转换为8位
func DecodeImage(data []byte) (gocv.Mat, error) {
	img, err := gocv.IMDecode(data, gocv.IMReadUnchanged)
	if err != nil || img.Empty() {
		img.Close()
		return gocv.NewMat(), &StageError{Stage: StageDecode, Err: ErrDecodeImage}
	}

	switch img.Type() {
	case gocv.MatTypeCV16UC1, gocv.MatTypeCV16UC3, gocv.MatTypeCV16UC4:
		converted := gocv.NewMat()
		img.ConvertToWithParams(&converted, gocv.MatTypeCV8U, 1.0/257.0, 0)
		img.Close()
		img = converted
	}

	if img.Channels() == 1 {
		bgr := gocv.NewMat()
		gocv.CvtColor(img, &bgr, gocv.ColorGrayToBGR)
		img.Close()
		img = bgr
	}
	return img, nil
}

// EncodePNG 将Mat编码为PNG
func EncodePNG(img gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		return nil, &StageError{Stage: StageEncode, Param: "png", Err: err}
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}
