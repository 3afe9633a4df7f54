package s3

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sqlpilot/sqlpilot/internal/storage"
)

func newMinioClient(cfg Config) (*minioAdapter, error) {
	endpoint, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &minioAdapter{mc: mc}, nil
}

// parseEndpoint accepts either host:port or a URL. A URL scheme decides TLS;
// a bare host falls back to useSSL.
func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint URL: %w", err)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("endpoint %q has no host", raw)
	}
	switch parsed.Scheme {
	case "https":
		return parsed.Host, true, nil
	case "http":
		return parsed.Host, false, nil
	default:
		return "", false, fmt.Errorf("endpoint scheme %q is not supported", parsed.Scheme)
	}
}

type minioAdapter struct {
	mc *minio.Client
}

func (m *minioAdapter) Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	uploaded, err := m.mc.PutObject(ctx, bucket, key, reader, size, minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
	})
	if err != nil {
		return storage.ObjectInfo{}, translateErr(err)
	}
	return storage.ObjectInfo{
		Key:          uploaded.Key,
		Size:         uploaded.Size,
		ETag:         uploaded.ETag,
		LastModified: uploaded.LastModified,
		Metadata:     opts.Metadata,
	}, nil
}

// Get stats the object before returning it so a missing key surfaces here
// rather than on the first Read.
func (m *minioAdapter) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := m.mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateErr(err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, translateErr(err)
	}
	return obj, nil
}

func (m *minioAdapter) Stat(ctx context.Context, bucket, key string) (storage.ObjectInfo, error) {
	obj, err := m.mc.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return storage.ObjectInfo{}, translateErr(err)
	}
	return objectInfo(obj), nil
}

func (m *minioAdapter) Delete(ctx context.Context, bucket, key string) error {
	return translateErr(m.mc.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}))
}

func (m *minioAdapter) List(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	listing := m.mc.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:       prefix,
		Recursive:    true,
		WithMetadata: true,
	})
	for obj := range listing {
		if obj.Err != nil {
			return nil, translateErr(obj.Err)
		}
		out = append(out, objectInfo(obj))
	}
	return out, nil
}

func (m *minioAdapter) BucketExists(ctx context.Context, bucket string) (bool, error) {
	exists, err := m.mc.BucketExists(ctx, bucket)
	return exists, translateErr(err)
}

func (m *minioAdapter) CreateBucket(ctx context.Context, bucket, region string) error {
	return translateErr(m.mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}))
}

func objectInfo(obj minio.ObjectInfo) storage.ObjectInfo {
	return storage.ObjectInfo{
		Key:          obj.Key,
		Size:         obj.Size,
		ETag:         obj.ETag,
		LastModified: obj.LastModified,
		Metadata:     userMetadata(obj.UserMetadata),
	}
}

// userMetadata lower-cases the canonical header keys minio hands back so
// they match the keys written with PutOptions.
func userMetadata(raw map[string]string) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for key, value := range raw {
		out[strings.TrimPrefix(strings.ToLower(key), "x-amz-meta-")] = value
	}
	return out
}

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return storage.ErrObjectNotFound
	}
	return err
}
