package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/TIANLI0/CutoutKit/config"
	"github.com/TIANLI0/CutoutKit/model"
	"github.com/TIANLI0/CutoutKit/service"
	"github.com/gin-gonic/gin"
)

type fakeProcessor struct {
	err     error
	effect  model.EffectConfig
	data    []byte
	results map[string]*model.CutoutResult
}

func (f *fakeProcessor) Process(_ context.Context, data []byte, effect model.EffectConfig) (*model.CutoutResult, error) {
	f.data = data
	f.effect = effect
	if f.err != nil {
		return nil, f.err
	}
	return &model.CutoutResult{Key: "k1", Width: 10, Height: 10, Channels: 4, Config: effect}, nil
}

func (f *fakeProcessor) Get(_ context.Context, key string) (*model.CutoutResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results[key], nil
}

func (f *fakeProcessor) Preview(result *model.CutoutResult, size int) ([]byte, error) {
	return []byte(fmt.Sprintf("png:%s:%d", result.Key, size)), nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(p CutoutProcessor) *gin.Engine {
	cfg := config.New()
	cfg.Upload.MaxSize = 1024
	h := NewCutoutHandler(cfg, p)

	r := gin.New()
	api := r.Group("/api/v1")
	api.POST("/cutout", h.Create)
	api.GET("/cutout/:key", h.GetByKey)
	api.GET("/cutout/:key/preview", h.Preview)
	api.GET("/presets", h.Presets)
	return r
}

func uploadRequest(t *testing.T, contentType string, body []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if body != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="image"; filename="in.png"`)
		header.Set("Content-Type", contentType)
		part, err := w.CreatePart(header)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(body)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cutout", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestCreate(t *testing.T) {
	p := &fakeProcessor{}
	r := newTestRouter(p)

	req := uploadRequest(t, "image/png", []byte("pngdata"), map[string]string{
		"preset":           "dramatic",
		"composite_mode":   "bordered",
		"background_color": "#000000",
		"detail_level":     "8",
		"soft_edges":       "false",
		"noise_seed":       "11",
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp model.UploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Data == nil || resp.Data.Key != "k1" {
		t.Errorf("response = %+v", resp)
	}

	if string(p.data) != "pngdata" {
		t.Errorf("processor received %q", p.data)
	}
	e := p.effect
	if e.CompositeMode != model.CompositeBordered || e.BackgroundColor != model.Black ||
		e.DetailLevel != 8 || e.SoftEdges || e.NoiseSeed != 11 {
		t.Errorf("effect = %+v", e)
	}
	if e.EdgeRoughness != model.Presets[model.PresetDramatic].EdgeRoughness {
		t.Errorf("preset not applied: roughness %v", e.EdgeRoughness)
	}
}

func TestCreateRejects(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        []byte
		fields      map[string]string
		want        int
	}{
		{"missing file", "", nil, nil, http.StatusBadRequest},
		{"too large", "image/png", bytes.Repeat([]byte("x"), 2048), nil, http.StatusBadRequest},
		{"wrong type", "text/plain", []byte("hello"), nil, http.StatusBadRequest},
		{"bad number", "image/png", []byte("x"), map[string]string{"edge_roughness": "lots"}, http.StatusBadRequest},
		{"bad color", "image/png", []byte("x"), map[string]string{"outline_color": "#12"}, http.StatusBadRequest},
		{"unknown preset", "image/png", []byte("x"), map[string]string{"preset": "wild"}, http.StatusBadRequest},
		{"zero detail", "image/png", []byte("x"), map[string]string{"detail_level": "0"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProcessor{}
			r := newTestRouter(p)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, uploadRequest(t, tt.contentType, tt.body, tt.fields))

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.want, w.Body.String())
			}
			if p.data != nil {
				t.Error("processor called for rejected request")
			}
		})
	}
}

func TestCreateErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&service.StageError{Stage: service.StageDecode, Err: service.ErrDecodeImage}, http.StatusBadRequest},
		{&service.StageError{Stage: service.StageValidate, Err: service.ErrInvalidConfig}, http.StatusBadRequest},
		{&service.StageError{Stage: service.StageExtract, Err: service.ErrNoForeground}, http.StatusUnprocessableEntity},
		{service.ErrQueueFull, http.StatusServiceUnavailable},
		{context.Canceled, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			r := newTestRouter(&fakeProcessor{err: tt.err})
			w := httptest.NewRecorder()
			r.ServeHTTP(w, uploadRequest(t, "image/png", []byte("x"), nil))

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestGetByKeyAndPreview(t *testing.T) {
	p := &fakeProcessor{results: map[string]*model.CutoutResult{
		"abc": {Key: "abc", Width: 5},
	}}
	r := newTestRouter(p)

	tests := []struct {
		path string
		want int
		body string
	}{
		{"/api/v1/cutout/abc", http.StatusOK, ""},
		{"/api/v1/cutout/missing", http.StatusNotFound, ""},
		{"/api/v1/cutout/abc/preview", http.StatusOK, "png:abc:400"},
		{"/api/v1/cutout/missing/preview", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.body != "" {
				if got := w.Body.String(); got != tt.body {
					t.Errorf("body = %q, want %q", got, tt.body)
				}
				if ct := w.Header().Get("Content-Type"); ct != "image/png" {
					t.Errorf("content type = %s", ct)
				}
			}
		})
	}
}

func TestPresets(t *testing.T) {
	r := newTestRouter(&fakeProcessor{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/presets", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp model.PresetResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Default != model.PresetModerate || len(resp.Presets) != 3 {
		t.Errorf("response = %+v", resp)
	}
}
