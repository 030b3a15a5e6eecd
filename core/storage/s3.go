package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
)

// S3Provider serves a bucket on an S3-compatible endpoint through the
// minio client.
type S3Provider struct {
	name          string
	client        Client
	bucket        string
	publicBaseURL string
}

// NewS3Provider creates an object-storage provider. When publicBaseURL is
// set, uploaded objects resolve to direct externally-addressable URLs
// instead of provider paths.
func NewS3Provider(name string, client Client, bucket, publicBaseURL string) *S3Provider {
	return &S3Provider{
		name:          name,
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}
}

// Name returns the provider identifier.
func (p *S3Provider) Name() string { return p.name }

// CheapListing is false: every directory level costs a remote round trip.
func (p *S3Provider) CheapListing() bool { return false }

// List returns one level of the bucket's pseudo-hierarchy. Keys ending in
// "/" are reported as directories, everything else as files.
func (p *S3Provider) List(ctx context.Context, dir string) (*Listing, error) {
	prefix := strings.Trim(dir, "/")
	if prefix != "" {
		prefix += "/"
	}

	listing := &Listing{}
	objects := p.client.ListObjects(ctx, p.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: false,
	})
	for obj := range objects {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %q: %w", dir, obj.Err)
		}
		key := obj.Key
		if strings.HasSuffix(key, "/") {
			listing.Dirs = append(listing.Dirs, strings.TrimSuffix(key, "/"))
			continue
		}
		listing.Files = append(listing.Files, key)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return listing, nil
}

// EnsureDir is a no-op: object storage has no directories.
func (p *S3Provider) EnsureDir(ctx context.Context, dir string) error {
	return ctx.Err()
}

// Upload writes the object and returns its stored address.
func (p *S3Provider) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	key := strings.Trim(path, "/")
	_, err := p.client.PutObject(ctx, p.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %q: %w", path, err)
	}
	if p.publicBaseURL != "" {
		return p.publicBaseURL + "/" + key, nil
	}
	return key, nil
}

// StoredPath returns the stored address of a listed key, the same form
// Upload returns.
func (p *S3Provider) StoredPath(path string) string {
	key := strings.Trim(path, "/")
	if p.publicBaseURL != "" {
		return p.publicBaseURL + "/" + key
	}
	return key
}
