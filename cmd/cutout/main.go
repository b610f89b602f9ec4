// Command cutout 在命令行中对单张图片或整个目录应用剪纸效果
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/TIANLI0/CutoutKit/config"
	"github.com/TIANLI0/CutoutKit/model"
	"github.com/TIANLI0/CutoutKit/service"
	"github.com/TIANLI0/CutoutKit/utils"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// effectFlags 命令行参数与配置键的对应关系
var effectFlags = map[string]string{
	"preset":      "cutout.preset",
	"distortion":  "effect.distortion_mode",
	"composite":   "effect.composite_mode",
	"roughness":   "effect.edge_roughness",
	"detail":      "effect.detail_level",
	"shadow":      "effect.shadow_intensity",
	"background":  "effect.background_color",
	"seed":        "effect.noise_seed",
	"transparent": "effect.transparent_background",
	"workers":     "cutout.max_concurrent",
	"log-level":   "server.log_level",
}

func main() {
	fs := pflag.NewFlagSet("cutout", pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cutout [flags] <input file or directory>\n\n")
		fs.PrintDefaults()
	}

	configPath := fs.StringP("config", "c", "", "配置文件路径 (YAML)")
	output := fs.StringP("output", "o", "", "输出目录，默认与输入相同")
	fs.StringP("preset", "p", "", "效果预设: subtle, moderate, dramatic")
	fs.StringP("distortion", "d", "", "边缘变形: none, torn-paper, scissor-cut")
	fs.StringP("composite", "m", "", "合成模式: auto, transparent, opaque, bordered, outline")
	fs.Float64("roughness", 0, "边缘粗糙度")
	fs.Float64("detail", 0, "多边形细节等级 (1-30)")
	fs.Float64("shadow", 0, "投影强度")
	fs.String("background", "", "背景颜色 (#rrggbb)")
	fs.Int64("seed", 0, "噪声随机种子")
	fs.Bool("transparent", true, "输出带透明通道的PNG")
	fs.IntP("workers", "w", 0, "并行处理数量")
	fs.String("log-level", "", "日志级别")
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(fs, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cutout: %v\n", err)
		os.Exit(1)
	}

	if err := utils.InitLogger(cfg.Server.Mode, cfg.Server.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "cutout: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Sync()

	if err := run(context.Background(), cfg, fs.Arg(0), *output); err != nil {
		utils.Logger.Error("cutout failed", zap.Error(err))
		utils.Sync()
		os.Exit(1)
	}
}

// loadConfig 合并默认值、配置文件、环境变量和显式设置的命令行参数
func loadConfig(fs *pflag.FlagSet, configPath string) (*config.Config, error) {
	v := config.NewViper()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := bindFlags(v, fs); err != nil {
		return nil, err
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, err
	}
	// 命令行按顺序处理所有文件，不需要排队超时
	cfg.Cutout.QueueTimeout = 0
	return cfg, nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range effectFlags {
		flag := fs.Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, input, output string) error {
	info, err := os.Stat(input)
	if err != nil {
		return err
	}

	svc := service.NewCutoutService(&cfg.Cutout,
		service.NewAutoExtractor(service.NewGrabCutService(&cfg.GrabCut)), nil)

	if !info.IsDir() {
		if output == "" {
			output = filepath.Dir(input)
		}
		if err := os.MkdirAll(output, 0755); err != nil {
			return err
		}
		return processFile(ctx, svc, cfg.Effect, input, output)
	}

	if output == "" {
		output = input
	}
	if err := os.MkdirAll(output, 0755); err != nil {
		return err
	}

	files, err := listImages(input)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no images found in %s", input)
	}

	start := time.Now()
	var processed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, cfg.Cutout.MaxConcurrent))
	for _, file := range files {
		g.Go(func() error {
			if err := processFile(gctx, svc, cfg.Effect, file, output); err != nil {
				// 单张失败不影响其余文件
				utils.Logger.Warn("failed to process image", zap.String("file", file), zap.Error(err))
				return nil
			}
			processed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	n := processed.Load()
	fmt.Printf("processed %d/%d images in %s\n", n, len(files), time.Since(start).Round(time.Millisecond))
	if n == 0 {
		return errors.New("no image processed successfully")
	}
	return nil
}

func processFile(ctx context.Context, svc *service.CutoutService, effect model.EffectConfig, input, outputDir string) error {
	md5, err := utils.FileMD5(input)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}

	rendered, err := svc.Render(ctx, data, effect)
	if err != nil {
		return err
	}

	dst := filepath.Join(outputDir, utils.CutoutName(input))
	if err := os.WriteFile(dst, rendered.PNG, 0644); err != nil {
		return err
	}

	utils.Logger.Info("cutout written",
		zap.String("input", input),
		zap.String("md5", md5),
		zap.String("output", dst),
		zap.String("source", rendered.Source),
		zap.Int("channels", rendered.Channels))
	return nil
}

// listImages 按文件名排序返回目录下的图片，跳过已生成的结果
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, "_cutout.png") {
			continue
		}
		if imageExts[strings.ToLower(filepath.Ext(name))] {
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}
