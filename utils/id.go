package utils

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// GenerateID 生成基于时间戳的ID
func GenerateID() int64 {
	return time.Now().UnixNano()
}

// CutoutName 由输入文件名生成输出文件名，统一使用PNG以保留透明度
func CutoutName(inputPath string) string {
	base := filepath.Base(inputPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" {
		name = fmt.Sprintf("%d", GenerateID())
	}
	return name + "_cutout.png"
}
