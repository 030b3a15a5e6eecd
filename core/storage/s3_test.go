package storage_test

import (
	"context"
	"testing"

	"catalog-sync/core/storage"
	"catalog-sync/core/storage/mocks"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func objectStream(objects ...minio.ObjectInfo) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, len(objects))
	for _, o := range objects {
		ch <- o
	}
	close(ch)
	return ch
}

func TestS3Provider_ListSplitsFilesAndDirs(t *testing.T) {
	client := new(mocks.Client)
	client.On("ListObjects", mock.Anything, "catalog", mock.MatchedBy(func(opts minio.ListObjectsOptions) bool {
		return opts.Prefix == "media/" && !opts.Recursive
	})).Return(objectStream(
		minio.ObjectInfo{Key: "media/a.png"},
		minio.ObjectInfo{Key: "media/nested/"},
		minio.ObjectInfo{Key: "media/b.jpg"},
	))

	provider := storage.NewS3Provider("s3", client, "catalog", "")
	listing, err := provider.List(context.Background(), "media")
	require.NoError(t, err)

	assert.Equal(t, []string{"media/a.png", "media/b.jpg"}, listing.Files)
	assert.Equal(t, []string{"media/nested"}, listing.Dirs)
	client.AssertExpectations(t)
}

func TestS3Provider_UploadReturnsPublicURL(t *testing.T) {
	client := new(mocks.Client)
	client.On("PutObject", mock.Anything, "catalog", "media/a.png", mock.Anything, int64(5), mock.MatchedBy(func(opts minio.PutObjectOptions) bool {
		return opts.ContentType == "image/png"
	})).Return(minio.UploadInfo{}, nil)

	provider := storage.NewS3Provider("s3", client, "catalog", "https://cdn.example/")
	stored, err := provider.Upload(context.Background(), "/media/a.png", []byte("bytes"), "image/png")
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example/media/a.png", stored)
	client.AssertExpectations(t)
}

func TestS3Provider_UploadWithoutPublicBaseReturnsKey(t *testing.T) {
	client := new(mocks.Client)
	client.On("PutObject", mock.Anything, "catalog", "media/a.png", mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, nil)

	provider := storage.NewS3Provider("s3", client, "catalog", "")
	stored, err := provider.Upload(context.Background(), "media/a.png", []byte("bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "media/a.png", stored)
}
