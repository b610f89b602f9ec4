package service

import (
	"bytes"
	"image"
	"math/rand/v2"
	"testing"

	"gocv.io/x/gocv"
)

func randomMask(t *testing.T, seed uint64, rows, cols int) gocv.Mat {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, 1))
	data := make([]byte, rows*cols)
	for i := range data {
		data[i] = uint8(rng.IntN(256))
	}
	m, err := matFromBytes(rows, cols, gocv.MatTypeCV8U, data)
	if err != nil {
		t.Fatalf("matFromBytes: %v", err)
	}
	return m
}

func TestConditionIdempotent(t *testing.T) {
	mp := NewMaskProcessor()

	tests := []struct {
		name      string
		threshold int
		opts      ConditionOptions
	}{
		{"binarize only", 200, ConditionOptions{}},
		{"zero threshold", 0, ConditionOptions{}},
		{"threshold above range", 400, ConditionOptions{}},
		{"negative threshold", -5, ConditionOptions{}},
		{"morphology", 128, ConditionOptions{Morphology: true}},
		{"morphology low threshold", 30, ConditionOptions{Morphology: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for seed := uint64(1); seed <= 3; seed++ {
				mask := randomMask(t, seed, 64, 48)
				once := mp.Condition(mask, tt.threshold, tt.opts)
				twice := mp.Condition(once, tt.threshold, tt.opts)

				assertSameBytes(t, tt.name, once, twice)
				for _, v := range maskBytes(once) {
					if v != 0 && v != 255 {
						t.Fatalf("non-binary value %d", v)
					}
				}

				mask.Close()
				once.Close()
				twice.Close()
			}
		})
	}
}

func TestSmoothStaircase(t *testing.T) {
	mp := NewMaskProcessor()

	// 2像素宽的细条在重复平滑时会逐次变短，平滑只在 Condition 之前执行一次
	mask := rectMask(t, 40, 40, 255, image.Rect(5, 5, 35, 35), image.Rect(2, 37, 20, 39))
	defer mask.Close()
	mask.SetUCharAt(2, 2, 255)

	smoothed := mp.SmoothStaircase(mask, 128)
	defer smoothed.Close()

	if v := smoothed.GetUCharAt(2, 2); v != 0 {
		t.Errorf("isolated pixel survived smoothing: %d", v)
	}
	if v := smoothed.GetUCharAt(20, 20); v != 255 {
		t.Errorf("square interior lost: %d", v)
	}

	for _, opts := range []ConditionOptions{{}, {Morphology: true}} {
		once := mp.Condition(smoothed, 128, opts)
		twice := mp.Condition(once, 128, opts)

		assertSameBytes(t, "condition after smoothing", once, twice)
		for _, v := range maskBytes(once) {
			if v != 0 && v != 255 {
				t.Fatalf("non-binary value %d", v)
			}
		}

		once.Close()
		twice.Close()
	}
}

func TestBinarize(t *testing.T) {
	mp := NewMaskProcessor()

	data := []byte{0, 50, 199, 200, 201, 255}
	mask, err := matFromBytes(1, len(data), gocv.MatTypeCV8U, data)
	if err != nil {
		t.Fatal(err)
	}
	defer mask.Close()

	tests := []struct {
		threshold int
		want      []byte
	}{
		{200, []byte{0, 0, 0, 255, 255, 255}},
		{0, []byte{255, 255, 255, 255, 255, 255}},
		{-10, []byte{255, 255, 255, 255, 255, 255}},
		{255, []byte{0, 0, 0, 0, 0, 255}},
		{1000, []byte{0, 0, 0, 0, 0, 255}},
	}

	for _, tt := range tests {
		got := mp.Binarize(mask, tt.threshold)
		if !bytes.Equal(maskBytes(got), tt.want) {
			t.Errorf("Binarize(t=%d) = %v, want %v", tt.threshold, maskBytes(got), tt.want)
		}
		got.Close()
	}
}

func TestMorphologyRemovesSpecksAndFillsPinholes(t *testing.T) {
	mp := NewMaskProcessor()

	mask := rectMask(t, 40, 40, 255, image.Rect(10, 10, 30, 30), image.Rect(2, 2, 3, 3))
	defer mask.Close()
	// 主体中的针孔
	mask.SetUCharAt(20, 20, 0)

	got := mp.Condition(mask, 128, ConditionOptions{Morphology: true})
	defer got.Close()

	if v := got.GetUCharAt(2, 2); v != 0 {
		t.Errorf("isolated speck survived: %d", v)
	}
	if v := got.GetUCharAt(20, 20); v != 255 {
		t.Errorf("pinhole not filled: %d", v)
	}
	if v := got.GetUCharAt(10, 10); v != 255 {
		t.Errorf("square corner lost: %d", v)
	}
}

func TestKeepLargest(t *testing.T) {
	mp := NewMaskProcessor()

	mask := rectMask(t, 60, 60, 255, image.Rect(5, 5, 15, 15), image.Rect(25, 25, 55, 55))
	defer mask.Close()

	got := mp.KeepLargest(mask)
	defer got.Close()

	if v := got.GetUCharAt(10, 10); v != 0 {
		t.Errorf("small region kept: %d", v)
	}
	if v := got.GetUCharAt(40, 40); v != 255 {
		t.Errorf("largest region lost: %d", v)
	}
}

func TestOddKernel(t *testing.T) {
	tests := map[int]int{-3: 1, 0: 1, 1: 1, 2: 3, 5: 5, 30: 31}
	for in, want := range tests {
		if got := oddKernel(in); got != want {
			t.Errorf("oddKernel(%d) = %d, want %d", in, got, want)
		}
	}
}
