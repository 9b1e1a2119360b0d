// Package storage 提供媒体对象存储实现
package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"mediaforge-ai-api/internal/domain/service"
)

// MemoryStore 进程内存储，用于测试与本地开发
type MemoryStore struct {
	mu        sync.RWMutex
	blobs     map[string][]byte
	publicURL string
}

// NewMemoryStore 创建内存存储
func NewMemoryStore(publicURL string) *MemoryStore {
	return &MemoryStore{
		blobs:     make(map[string][]byte),
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// Put 写入对象并返回引用
func (s *MemoryStore) Put(_ context.Context, data []byte, contentType string) (service.BlobRef, error) {
	key := uuid.NewString() + extensionFor(contentType)

	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.blobs[key] = buf
	s.mu.Unlock()

	return service.BlobRef{
		Key: key,
		URL: s.publicURL + "/" + key,
	}, nil
}

// Get 读取对象
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	data, ok := s.blobs[key]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("blob not found: %s", key)
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Len 当前对象数量
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
