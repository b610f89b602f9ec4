package service

import (
	"bytes"
	"errors"
	"flag"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TIANLI0/CutoutKit/model"
	"github.com/TIANLI0/CutoutKit/utils"
	"gocv.io/x/gocv"
)

var updateSnapshots = flag.Bool("update", false, "rewrite testdata/*.md5 snapshots")

// checkSnapshot 比较 data 的MD5与 testdata/<name>.md5，文件不存在或指定 -update 时写入
func checkSnapshot(t *testing.T, name string, data []byte) {
	t.Helper()
	path := filepath.Join("testdata", name+".md5")
	got := utils.BytesMD5(data)

	want, err := os.ReadFile(path)
	if *updateSnapshots || errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll("testdata", 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(got+"\n"), 0644); err != nil {
			t.Fatal(err)
		}
		t.Logf("snapshot %s written: %s", path, got)
		return
	}
	if err != nil {
		t.Fatal(err)
	}
	if w := strings.TrimSpace(string(want)); w != got {
		t.Errorf("%s: md5 = %s, snapshot %s (rerun with -update if the change is intended)", name, got, w)
	}
}

// rectMask 返回 rect 内为 value、其余为0的单通道掩码
func rectMask(t *testing.T, rows, cols int, value uint8, rects ...image.Rectangle) gocv.Mat {
	t.Helper()
	data := make([]byte, rows*cols)
	for _, r := range rects {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				data[y*cols+x] = value
			}
		}
	}
	m, err := matFromBytes(rows, cols, gocv.MatTypeCV8U, data)
	if err != nil {
		t.Fatalf("matFromBytes: %v", err)
	}
	return m
}

func filledMask(t *testing.T, rows, cols int, value uint8) gocv.Mat {
	t.Helper()
	return rectMask(t, rows, cols, value, image.Rect(0, 0, cols, rows))
}

// gradientImage 返回每个像素颜色各不相同的BGR测试图
func gradientImage(t *testing.T, rows, cols int) gocv.Mat {
	t.Helper()
	data := make([]byte, rows*cols*3)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			i := (y*cols + x) * 3
			data[i] = uint8(x * 255 / max(1, cols-1))
			data[i+1] = uint8(y * 255 / max(1, rows-1))
			data[i+2] = 128
		}
	}
	m, err := matFromBytes(rows, cols, gocv.MatTypeCV8UC3, data)
	if err != nil {
		t.Fatalf("matFromBytes: %v", err)
	}
	return m
}

func assertSameBytes(t *testing.T, name string, want, got gocv.Mat) {
	t.Helper()
	if !sameSize(want, got) || want.Channels() != got.Channels() {
		t.Fatalf("%s: shape %dx%dx%d, want %dx%dx%d", name,
			got.Cols(), got.Rows(), got.Channels(), want.Cols(), want.Rows(), want.Channels())
	}
	if !bytes.Equal(maskBytes(want), maskBytes(got)) {
		t.Fatalf("%s: pixel data differs", name)
	}
}

// testEffect 无投影、无增强的基础配置，便于精确比较像素
func testEffect() model.EffectConfig {
	cfg := model.DefaultEffectConfig()
	cfg.ShadowIntensity = 0
	cfg.Enhance = false
	cfg.SoftEdges = false
	return cfg
}
