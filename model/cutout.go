package model

// CutoutResult 剪纸效果处理结果
type CutoutResult struct {
	Key         string       `json:"key"`
	MD5         string       `json:"md5"`
	Width       int          `json:"width"`
	Height      int          `json:"height"`
	Channels    int          `json:"channels"`
	BoundingBox BBox         `json:"bounding_box"`
	Image       string       `json:"image"` // base64编码的PNG数据
	Config      EffectConfig `json:"config"`
	Timestamp   int64        `json:"timestamp"`
}

// BBox 边界框
type BBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// UploadResponse 上传响应
type UploadResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Data    *CutoutResult `json:"data,omitempty"`
}

// PresetResponse 预设列表响应
type PresetResponse struct {
	Success bool              `json:"success"`
	Default string            `json:"default"`
	Presets map[string]Preset `json:"presets"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
