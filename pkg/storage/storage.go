// Package storage 归档评测产物（提交代码与评测报告）：本地、MinIO、阿里云 OSS
package storage

import (
	"bytes"
	"collabhub_backend/internal/config"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Provider 定义通用存储接口
type Provider interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Name() string
}

// LocalProvider 本地存储实现
type LocalProvider struct {
	Root string
}

func (p *LocalProvider) Name() string { return "local" }

func (p *LocalProvider) path(key string) (string, error) {
	dst := filepath.Join(p.Root, filepath.FromSlash(key))
	rel, err := filepath.Rel(p.Root, dst)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return dst, nil
}

func (p *LocalProvider) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	dst, err := p.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, reader); err != nil {
		return "", err
	}
	return "file://" + dst, nil
}

func (p *LocalProvider) Get(ctx context.Context, key string) ([]byte, error) {
	dst, err := p.path(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(dst)
}

func (p *LocalProvider) Delete(ctx context.Context, key string) error {
	dst, err := p.path(key)
	if err != nil {
		return err
	}
	return os.Remove(dst)
}

// MinioProvider MinIO存储实现
type MinioProvider struct {
	Bucket string
	Client *minio.Client
}

func NewMinioProvider(cfg *config.StorageConfig) (*MinioProvider, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &MinioProvider{Bucket: cfg.MinioBucket, Client: client}, nil
}

func (p *MinioProvider) Name() string { return "minio" }

func (p *MinioProvider) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	_, err := p.Client.PutObject(ctx, p.Bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return "s3://" + p.Bucket + "/" + key, nil
}

func (p *MinioProvider) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := p.Client.GetObject(ctx, p.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

func (p *MinioProvider) Delete(ctx context.Context, key string) error {
	return p.Client.RemoveObject(ctx, p.Bucket, key, minio.RemoveObjectOptions{})
}

// OSSProvider 阿里云OSS存储实现
type OSSProvider struct {
	Bucket *oss.Bucket
	name   string
}

func NewOSSProvider(cfg *config.StorageConfig) (*OSSProvider, error) {
	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, err
	}
	bucket, err := client.Bucket(cfg.OSSBucket)
	if err != nil {
		return nil, err
	}
	return &OSSProvider{Bucket: bucket, name: cfg.OSSBucket}, nil
}

func (p *OSSProvider) Name() string { return "oss" }

func (p *OSSProvider) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	if err := p.Bucket.PutObject(key, reader, oss.ContentType(contentType)); err != nil {
		return "", err
	}
	return "oss://" + p.name + "/" + key, nil
}

func (p *OSSProvider) Get(ctx context.Context, key string) ([]byte, error) {
	body, err := p.Bucket.GetObject(key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

func (p *OSSProvider) Delete(ctx context.Context, key string) error {
	return p.Bucket.DeleteObject(key)
}

// New 按 storage.type 构造存储
func New(cfg *config.StorageConfig) (Provider, error) {
	switch cfg.Type {
	case "minio":
		return NewMinioProvider(cfg)
	case "oss":
		return NewOSSProvider(cfg)
	case "local", "":
		return &LocalProvider{Root: cfg.LocalPath}, nil
	}
	return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
}

// PutBytes 便捷写入
func PutBytes(ctx context.Context, p Provider, key string, data []byte, contentType string) (string, error) {
	return p.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
}
