package artifact

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/geetools/exportsched/internal/cmn/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var _ Prober = (*MinioProber)(nil)

// MinioProber checks objects through an S3-compatible endpoint. Cloud
// Storage is reached through its interoperability API using HMAC keys.
type MinioProber struct {
	client *minio.Client
}

// NewMinioProber creates a prober for the configured endpoint. Without keys
// requests are anonymous.
func NewMinioProber(cfg config.Storage) (*MinioProber, error) {
	var creds *credentials.Credentials
	if cfg.AccessKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		creds = credentials.NewStatic("", "", "", credentials.SignatureAnonymous)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &MinioProber{client: client}, nil
}

// Exists reports whether uri names an object, or a prefix with at least one
// shard of it. Exports that write sharded files are matched by prefix; a
// shard continues the key with "-", "." or "/", so a sibling such as
// ndvi_2020_v2.tif does not count for ndvi_2020.
func (p *MinioProber) Exists(ctx context.Context, uri string) (bool, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return false, err
	}

	_, err = p.client.StatObject(ctx, loc.Bucket, loc.Key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code != "NoSuchKey" && resp.StatusCode != http.StatusNotFound {
		return false, fmt.Errorf("failed to stat %s: %w", loc, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for obj := range p.client.ListObjects(ctx, loc.Bucket, minio.ListObjectsOptions{
		Prefix:    loc.Key,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return false, fmt.Errorf("failed to list %s: %w", loc, obj.Err)
		}
		if isShard(loc.Key, obj.Key) {
			return true, nil
		}
	}
	return false, nil
}

func isShard(prefix, key string) bool {
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok || rest == "" {
		return false
	}
	switch rest[0] {
	case '-', '.', '/':
		return true
	}
	return false
}
