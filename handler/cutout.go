package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/TIANLI0/CutoutKit/config"
	"github.com/TIANLI0/CutoutKit/model"
	"github.com/TIANLI0/CutoutKit/service"
	"github.com/TIANLI0/CutoutKit/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CutoutProcessor 剪纸处理服务
type CutoutProcessor interface {
	Process(ctx context.Context, data []byte, effect model.EffectConfig) (*model.CutoutResult, error)
	Get(ctx context.Context, key string) (*model.CutoutResult, error)
	Preview(result *model.CutoutResult, size int) ([]byte, error)
}

type CutoutHandler struct {
	cfg       *config.Config
	processor CutoutProcessor
}

func NewCutoutHandler(cfg *config.Config, processor CutoutProcessor) *CutoutHandler {
	return &CutoutHandler{
		cfg:       cfg,
		processor: processor,
	}
}

// Create 上传图片并生成剪纸效果
func (h *CutoutHandler) Create(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		utils.Logger.Error("failed to get uploaded file", zap.Error(err))
		fail(c, http.StatusBadRequest, "请上传图片文件", err)
		return
	}

	// 验证文件大小
	if file.Size > h.cfg.Upload.MaxSize {
		fail(c, http.StatusBadRequest, fmt.Sprintf("文件大小超过限制 (%d MB)", h.cfg.Upload.MaxSize/(1024*1024)), nil)
		return
	}

	// 验证文件类型
	contentType := file.Header.Get("Content-Type")
	if !h.isAllowedType(contentType) {
		fail(c, http.StatusBadRequest, "不支持的文件类型，仅支持 JPEG/PNG/BMP/TIFF/WebP", nil)
		return
	}

	effect, err := ParseEffectForm(c, h.cfg.Effect)
	if err != nil {
		fail(c, http.StatusBadRequest, "参数不合法", err)
		return
	}

	src, err := file.Open()
	if err != nil {
		fail(c, http.StatusInternalServerError, "读取文件失败", err)
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, h.cfg.Upload.MaxSize+1))
	if err != nil {
		fail(c, http.StatusInternalServerError, "读取文件失败", err)
		return
	}

	utils.Logger.Info("file uploaded",
		zap.String("filename", file.Filename),
		zap.Int64("size", file.Size),
		zap.String("distortion", string(effect.DistortionMode)),
		zap.String("composite", string(effect.CompositeMode)))

	result, err := h.processor.Process(c.Request.Context(), data, effect)
	if err != nil {
		utils.Logger.Error("failed to process image", zap.Error(err))
		status, message := errorStatus(err)
		fail(c, status, message, err)
		return
	}

	c.JSON(http.StatusOK, model.UploadResponse{
		Success: true,
		Message: "处理成功",
		Data:    result,
	})
}

// GetByKey 根据缓存键获取剪纸结果
func (h *CutoutHandler) GetByKey(c *gin.Context) {
	result, ok := h.lookup(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, model.UploadResponse{
		Success: true,
		Message: "查询成功",
		Data:    result,
	})
}

// Preview 返回剪纸结果的PNG缩略图
func (h *CutoutHandler) Preview(c *gin.Context) {
	result, ok := h.lookup(c)
	if !ok {
		return
	}

	thumb, err := h.processor.Preview(result, h.cfg.Cutout.PreviewSize)
	if err != nil {
		utils.Logger.Error("failed to build preview", zap.Error(err))
		fail(c, http.StatusInternalServerError, "生成预览失败", err)
		return
	}

	c.Data(http.StatusOK, "image/png", thumb)
}

// Presets 列出可用的效果预设
func (h *CutoutHandler) Presets(c *gin.Context) {
	c.JSON(http.StatusOK, model.PresetResponse{
		Success: true,
		Default: model.PresetModerate,
		Presets: model.Presets,
	})
}

func (h *CutoutHandler) lookup(c *gin.Context) (*model.CutoutResult, bool) {
	key := c.Param("key")
	if key == "" {
		fail(c, http.StatusBadRequest, "key参数缺失", nil)
		return nil, false
	}

	result, err := h.processor.Get(c.Request.Context(), key)
	if err != nil {
		utils.Logger.Error("failed to get cutout result", zap.Error(err))
		fail(c, http.StatusInternalServerError, "查询失败", err)
		return nil, false
	}

	if result == nil {
		fail(c, http.StatusNotFound, "未找到该剪纸结果", nil)
		return nil, false
	}
	return result, true
}

func (h *CutoutHandler) isAllowedType(contentType string) bool {
	for _, allowed := range h.cfg.Upload.AllowedTypes {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}

// fail 以统一的错误格式响应
func fail(c *gin.Context, status int, message string, err error) {
	resp := model.ErrorResponse{Success: false, Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(status, resp)
}

// errorStatus 将处理错误映射为HTTP状态码和提示信息
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidConfig), errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "参数不合法"
	case errors.Is(err, service.ErrDecodeImage):
		return http.StatusBadRequest, "无法解码图片"
	case errors.Is(err, service.ErrNoForeground):
		return http.StatusUnprocessableEntity, "未检测到前景主体"
	case errors.Is(err, service.ErrQueueFull):
		return http.StatusServiceUnavailable, "处理队列已满，请稍后重试"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "请求已取消或超时"
	default:
		return http.StatusInternalServerError, "图片处理失败"
	}
}
