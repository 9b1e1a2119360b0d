package service

import "context"

// BlobRef 指向已存储的媒体对象
type BlobRef struct {
	// Key 存储内部键
	Key string `json:"key"`
	// URL 对外可访问地址
	URL string `json:"url"`
}

// BlobStore 媒体对象存储 port。核心只通过该接口收发字节，
// 便于本地磁盘与对象存储实现互换。
type BlobStore interface {
	Put(ctx context.Context, data []byte, contentType string) (BlobRef, error)
	Get(ctx context.Context, key string) ([]byte, error)
}
