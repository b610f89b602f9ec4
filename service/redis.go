package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/TIANLI0/CutoutKit/config"
	"github.com/TIANLI0/CutoutKit/model"
	"github.com/TIANLI0/CutoutKit/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cutoutKeyPrefix = "cutout:"

// ResultCache 剪纸结果缓存，未命中时返回 nil, nil
type ResultCache interface {
	GetCutout(ctx context.Context, key string) (*model.CutoutResult, error)
	SetCutout(ctx context.Context, key string, result *model.CutoutResult) error
}

type RedisService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisService(cfg *config.RedisConfig) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisService{
		client: client,
		ttl:    cfg.TTL,
	}
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// GetCutout 从缓存获取剪纸结果
func (s *RedisService) GetCutout(ctx context.Context, key string) (*model.CutoutResult, error) {
	data, err := s.client.Get(ctx, cutoutKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // 缓存未命中
		}
		return nil, err
	}

	var result model.CutoutResult
	if err := json.Unmarshal(data, &result); err != nil {
		utils.Logger.Error("failed to unmarshal cutout result",
			zap.String("key", key), zap.Error(err))
		return nil, err
	}

	return &result, nil
}

// SetCutout 设置剪纸结果到缓存
func (s *RedisService) SetCutout(ctx context.Context, key string, result *model.CutoutResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, cutoutKeyPrefix+key, data, s.ttl).Err()
}

func (s *RedisService) Close() error {
	return s.client.Close()
}
