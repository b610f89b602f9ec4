package service

import (
	"errors"
	"fmt"

	"github.com/TIANLI0/CutoutKit/model"
)

// 处理阶段名称，用于错误上下文和日志
const (
	StageValidate  = "validate"
	StageDistort   = "distort"
	StageShadow    = "shadow"
	StageComposite = "composite"
	StageDecode    = "decode"
	StageExtract   = "extract"
	StageEncode    = "encode"
)

var (
	ErrInvalidConfig = model.ErrInvalidConfig
	ErrInvalidInput  = errors.New("invalid input")
	ErrNoForeground  = errors.New("no foreground detected")
	ErrDecodeImage   = errors.New("failed to decode image")
	ErrQueueFull     = errors.New("processing queue is full")
)

// StageError 记录失败的阶段和相关参数，便于复现
type StageError struct {
	Stage string
	Param string
	Err   error
}

func (e *StageError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Stage, e.Param, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
