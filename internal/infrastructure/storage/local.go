// Package storage 提供媒体对象存储实现
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"mediaforge-ai-api/internal/domain/service"
)

var tracer = otel.Tracer("storage")

// LocalStore 本地磁盘存储，对外 URL 由 publicURL + key 拼出
type LocalStore struct {
	dir       string
	publicURL string
}

// NewLocalStore 创建本地存储
func NewLocalStore(dir, publicURL string) (*LocalStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &LocalStore{
		dir:       dir,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// Put 写入对象并返回引用
func (s *LocalStore) Put(ctx context.Context, data []byte, contentType string) (service.BlobRef, error) {
	_, span := tracer.Start(ctx, "storage.LocalStore.Put")
	span.SetAttributes(
		attribute.String("blob.content_type", contentType),
		attribute.Int("blob.size", len(data)),
	)
	defer span.End()

	key := uuid.NewString() + extensionFor(contentType)
	path := filepath.Join(s.dir, key)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		span.RecordError(err)
		return service.BlobRef{}, fmt.Errorf("failed to write blob: %w", err)
	}

	return service.BlobRef{
		Key: key,
		URL: s.publicURL + "/" + key,
	}, nil
}

// Get 读取对象
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	_, span := tracer.Start(ctx, "storage.LocalStore.Get")
	span.SetAttributes(attribute.String("blob.key", key))
	defer span.End()

	// 拒绝路径穿越
	if strings.Contains(key, "..") || strings.ContainsRune(key, os.PathSeparator) {
		return nil, fmt.Errorf("invalid blob key: %s", key)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, key))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav":
		return ".wav"
	default:
		return ".bin"
	}
}
