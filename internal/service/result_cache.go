package service

import (
	"collabhub_backend/internal/model"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/crypto/blake2b"
)

// ResultCache 相同题目快照 + 相同代码 + 相同运行限制 → 相同结果
type ResultCache interface {
	Get(ctx context.Context, key string) (*EvaluationResult, bool)
	Set(ctx context.Context, key string, result *EvaluationResult, ttl time.Duration)
}

// EvaluationKey blake2b-256(快照 JSON ‖ 限制 ‖ 代码)
func EvaluationKey(snapshot model.ChallengeSnapshot, code string, timeout time.Duration, memoryMB int) (string, error) {
	snap, err := json.Marshal(snapshot)
	if err != nil {
		return "", err
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	h.Write(snap)
	h.Write([]byte{0})
	fmt.Fprintf(h, "%d|%d", timeout.Milliseconds(), memoryMB)
	h.Write([]byte{0})
	h.Write([]byte(code))
	return hex.EncodeToString(h.Sum(nil)), nil
}

type RedisResultCache struct {
	Client *redis.Client
	Prefix string
}

func NewRedisResultCache(client *redis.Client) *RedisResultCache {
	return &RedisResultCache{Client: client, Prefix: "collabhub:eval:"}
}

func (c *RedisResultCache) Get(ctx context.Context, key string) (*EvaluationResult, bool) {
	data, err := c.Client.Get(ctx, c.Prefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	var res EvaluationResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false
	}
	return &res, true
}

func (c *RedisResultCache) Set(ctx context.Context, key string, result *EvaluationResult, ttl time.Duration) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	c.Client.Set(ctx, c.Prefix+key, data, ttl)
}
