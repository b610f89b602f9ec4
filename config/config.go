package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/TIANLI0/CutoutKit/model"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const EnvPrefix = "CUTOUTKIT"

type Config struct {
	Server  ServerConfig       `mapstructure:"server"`
	Redis   RedisConfig        `mapstructure:"redis"`
	Upload  UploadConfig       `mapstructure:"upload"`
	GrabCut GrabCutConfig      `mapstructure:"grabcut"`
	Cutout  CutoutConfig       `mapstructure:"cutout"`
	Effect  model.EffectConfig `mapstructure:"effect"`
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	LogLevel       string        `mapstructure:"log_level"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

type GrabCutConfig struct {
	Iterations  int  `mapstructure:"iterations"`
	BorderSize  int  `mapstructure:"border_size"`
	MaxSize     int  `mapstructure:"max_size"`
	LargestOnly bool `mapstructure:"largest_only"`
}

type CutoutConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	QueueTimeout  time.Duration `mapstructure:"queue_timeout"`
	PreviewSize   int           `mapstructure:"preview_size"`
	Preset        string        `mapstructure:"preset"`
}

// NewViper 创建带默认值和环境变量覆盖（CUTOUTKIT_SERVER_PORT 等）的viper实例
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load 从 YAML 文件加载配置
func Load(configPath string) (*Config, error) {
	v := NewViper()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return FromViper(v)
}

// FromViper 将viper中的配置解码为Config，颜色字段支持 #rrggbb。
// cutout.preset 只替换效果参数的默认值，配置文件、环境变量和命令行中显式设置的值优先
func FromViper(v *viper.Viper) (*Config, error) {
	preset, err := model.DefaultEffectConfig().WithPreset(v.GetString("cutout.preset"))
	if err != nil {
		return nil, fmt.Errorf("invalid cutout preset: %w", err)
	}
	setEffectDefaults(v, preset)

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Effect.Validate(); err != nil {
		return nil, fmt.Errorf("invalid effect config: %w", err)
	}

	return &cfg, nil
}

// New 使用默认配置路径加载配置
func New() *Config {
	cfg, err := Load("config.yaml")
	if err == nil {
		return cfg
	}
	// 没有配置文件时仍然应用环境变量
	if cfg, err := FromViper(NewViper()); err == nil {
		return cfg
	}
	return getDefaultConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.log_level", "")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("upload.max_size", 10*1024*1024)
	v.SetDefault("upload.allowed_types", defaultAllowedTypes())

	v.SetDefault("grabcut.iterations", 5)
	v.SetDefault("grabcut.border_size", 10)
	v.SetDefault("grabcut.max_size", 1200)
	v.SetDefault("grabcut.largest_only", false)

	v.SetDefault("cutout.max_concurrent", 3)
	v.SetDefault("cutout.queue_timeout", 30*time.Second)
	v.SetDefault("cutout.preview_size", 400)
	v.SetDefault("cutout.preset", "")

	setEffectDefaults(v, model.DefaultEffectConfig())
}

func setEffectDefaults(v *viper.Viper, e model.EffectConfig) {
	v.SetDefault("effect.alpha_threshold", e.AlphaThreshold)
	v.SetDefault("effect.mask_morphology", e.MaskMorphology)
	v.SetDefault("effect.mask_smoothing", e.MaskSmoothing)
	v.SetDefault("effect.distortion_mode", string(e.DistortionMode))
	v.SetDefault("effect.edge_roughness", e.EdgeRoughness)
	v.SetDefault("effect.noise_scale", e.NoiseScale)
	v.SetDefault("effect.tear_radius", e.TearRadius)
	v.SetDefault("effect.edge_threshold", e.EdgeThreshold)
	v.SetDefault("effect.cut_length_min", e.CutLengthMin)
	v.SetDefault("effect.cut_length_max", e.CutLengthMax)
	v.SetDefault("effect.cut_frequency", e.CutFrequency)
	v.SetDefault("effect.cut_depth", e.CutDepth)
	v.SetDefault("effect.detail_level", e.DetailLevel)
	v.SetDefault("effect.outline_thickness", e.OutlineThickness)
	v.SetDefault("effect.border_thickness", e.BorderThickness)
	v.SetDefault("effect.background_color", e.BackgroundColor.String())
	v.SetDefault("effect.outline_color", e.OutlineColor.String())
	v.SetDefault("effect.border_color", e.BorderColor.String())
	v.SetDefault("effect.shadow_offset_x", e.ShadowOffsetX)
	v.SetDefault("effect.shadow_offset_y", e.ShadowOffsetY)
	v.SetDefault("effect.shadow_blur_radius", e.ShadowBlurRadius)
	v.SetDefault("effect.shadow_intensity", e.ShadowIntensity)
	v.SetDefault("effect.shadow_layered", e.ShadowLayered)
	v.SetDefault("effect.transparent_background", e.TransparentBackground)
	v.SetDefault("effect.composite_mode", string(e.CompositeMode))
	v.SetDefault("effect.enhance", e.Enhance)
	v.SetDefault("effect.soft_edges", e.SoftEdges)
	v.SetDefault("effect.noise_seed", e.NoiseSeed)
}

func defaultAllowedTypes() []string {
	return []string{"image/jpeg", "image/png", "image/jpg", "image/bmp", "image/tiff", "image/webp"}
}

func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           ":8080",
			Mode:           "debug",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   60 * time.Second,
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Redis: RedisConfig{
			Enabled: true,
			Addr:    "localhost:6379",
			TTL:     24 * time.Hour,
		},
		Upload: UploadConfig{
			MaxSize:      10 * 1024 * 1024,
			AllowedTypes: defaultAllowedTypes(),
		},
		GrabCut: GrabCutConfig{
			Iterations: 5,
			BorderSize: 10,
			MaxSize:    1200,
		},
		Cutout: CutoutConfig{
			MaxConcurrent: 3,
			QueueTimeout:  30 * time.Second,
			PreviewSize:   400,
		},
		Effect: model.DefaultEffectConfig(),
	}
}
