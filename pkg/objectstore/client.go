// Package objectstore wraps the S3-compatible intermediary bucket used
// by the object-store and hybrid transfer strategies.
package objectstore

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/encrypt"
)

// Config holds the connection settings for the intermediary bucket.
type Config struct {
	// Endpoint is the S3-compatible endpoint (host:port).
	Endpoint string `yaml:"endpoint" validate:"required"`

	// AccessKeyID and SecretAccessKey authenticate against the store.
	AccessKeyID     string `yaml:"access_key_id" validate:"required"`
	SecretAccessKey string `yaml:"secret_access_key" validate:"required"`

	// UseSSL enables TLS for the endpoint connection.
	UseSSL bool `yaml:"use_ssl"`

	// Region is the bucket region. Optional for most private stores.
	Region string `yaml:"region"`

	// Bucket is the bucket holding dump artifacts.
	Bucket string `yaml:"bucket" validate:"required"`

	// Prefix is prepended to every object key.
	Prefix string `yaml:"prefix"`

	// StorageClass for uploaded artifacts (e.g. STANDARD, REDUCED_REDUNDANCY).
	StorageClass string `yaml:"storage_class"`

	// SSE enables server-side encryption for uploaded artifacts.
	SSE bool `yaml:"sse"`
}

// Client is a thin wrapper around the minio client scoped to one bucket.
type Client struct {
	mc           *minio.Client
	bucket       string
	prefix       string
	storageClass string
	sse          encrypt.ServerSide
}

// NewClient creates an object store client from the configuration.
func NewClient(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	client := &Client{
		mc:           mc,
		bucket:       cfg.Bucket,
		prefix:       cfg.Prefix,
		storageClass: cfg.StorageClass,
	}
	if cfg.SSE {
		client.sse = encrypt.NewSSE()
	}
	return client, nil
}

// EnsureBucket creates the configured bucket if it does not exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return classifyError("head-bucket", err)
	}
	if exists {
		return nil
	}
	if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return classifyError("make-bucket", err)
	}
	return nil
}

// key applies the configured prefix to an object name.
func (c *Client) key(objectName string) string {
	if c.prefix == "" {
		return objectName
	}
	return c.prefix + "/" + objectName
}

// Upload stores a local file under the given object name. Returns the
// number of bytes written.
func (c *Client) Upload(ctx context.Context, objectName, filePath string) (int64, error) {
	info, err := c.mc.FPutObject(ctx, c.bucket, c.key(objectName), filePath, minio.PutObjectOptions{
		ContentType:          "application/octet-stream",
		StorageClass:         c.storageClass,
		ServerSideEncryption: c.sse,
	})
	if err != nil {
		return 0, classifyError("upload", err)
	}
	return info.Size, nil
}

// Download retrieves an object into a local file. Returns the object size.
func (c *Client) Download(ctx context.Context, objectName, filePath string) (int64, error) {
	if err := c.mc.FGetObject(ctx, c.bucket, c.key(objectName), filePath, minio.GetObjectOptions{}); err != nil {
		return 0, classifyError("download", err)
	}
	stat, err := c.mc.StatObject(ctx, c.bucket, c.key(objectName), minio.StatObjectOptions{})
	if err != nil {
		return 0, classifyError("stat", err)
	}
	return stat.Size, nil
}

// ObjectInfo describes a stored artifact object.
type ObjectInfo struct {
	Key          string
	SizeBytes    int64
	ETag         string
	LastModified time.Time
}

// Stat returns metadata for a stored object.
func (c *Client) Stat(ctx context.Context, objectName string) (ObjectInfo, error) {
	stat, err := c.mc.StatObject(ctx, c.bucket, c.key(objectName), minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, classifyError("stat", err)
	}
	return ObjectInfo{
		Key:          stat.Key,
		SizeBytes:    stat.Size,
		ETag:         stat.ETag,
		LastModified: stat.LastModified,
	}, nil
}

// Exists reports whether the object is present in the bucket.
func (c *Client) Exists(ctx context.Context, objectName string) (bool, error) {
	_, err := c.Stat(ctx, objectName)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Remove deletes an object. Missing objects are not an error.
func (c *Client) Remove(ctx context.Context, objectName string) error {
	err := c.mc.RemoveObject(ctx, c.bucket, c.key(objectName), minio.RemoveObjectOptions{})
	if err != nil && !IsNotFound(classifyError("remove", err)) {
		return classifyError("remove", err)
	}
	return nil
}
