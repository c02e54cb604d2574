package service

import (
	"academy_backend/internal/config"
	"academy_backend/internal/util"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// CatalogSource 目录文件（徽章/任务/等级）的只读来源
type CatalogSource interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Describe(name string) string
}

// LocalCatalogSource 本地文件，name 为相对 BaseDir 的路径或绝对路径
type LocalCatalogSource struct {
	BaseDir string
}

func (p *LocalCatalogSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return os.Open(p.path(name))
}

func (p *LocalCatalogSource) Describe(name string) string {
	return "file://" + p.path(name)
}

func (p *LocalCatalogSource) path(name string) string {
	if filepath.IsAbs(name) || p.BaseDir == "" {
		return name
	}
	return filepath.Join(p.BaseDir, name)
}

// MinioCatalogSource MinIO 存储桶
type MinioCatalogSource struct {
	Config *config.StorageConfig
	Client *minio.Client
}

func NewMinioCatalogSource(cfg *config.StorageConfig) (*MinioCatalogSource, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &MinioCatalogSource{Config: cfg, Client: client}, nil
}

func (p *MinioCatalogSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := p.Client.GetObject(ctx, p.Config.MinioBucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject 是惰性的，Stat 才会暴露 NoSuchKey
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}

func (p *MinioCatalogSource) Describe(name string) string {
	return "minio://" + p.Config.MinioBucket + "/" + name
}

// OSSCatalogSource 阿里云 OSS
type OSSCatalogSource struct {
	Config *config.StorageConfig
	Client *oss.Client
}

func NewOSSCatalogSource(cfg *config.StorageConfig) (*OSSCatalogSource, error) {
	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, err
	}
	return &OSSCatalogSource{Config: cfg, Client: client}, nil
}

func (p *OSSCatalogSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return nil, err
	}
	return bucket.GetObject(name)
}

func (p *OSSCatalogSource) Describe(name string) string {
	return fmt.Sprintf("oss://%s/%s", p.Config.OSSBucket, name)
}

// NewCatalogSource 按 storage.type 选择来源
func NewCatalogSource(cfg *config.StorageConfig) (CatalogSource, error) {
	switch cfg.Type {
	case "", util.StorageLocal:
		return &LocalCatalogSource{}, nil
	case util.StorageMinio:
		return NewMinioCatalogSource(cfg)
	case util.StorageOSS:
		return NewOSSCatalogSource(cfg)
	}
	return nil, fmt.Errorf("%w: %s", util.ErrUnknownCatalogSrc, cfg.Type)
}
