package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lalith-99/huddle/internal/config"
)

func TestCleanKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "uploads/app/public/u1/1_a.png", want: "uploads/app/public/u1/1_a.png"},
		{key: "/leading/slash", want: "leading/slash"},
		{key: "", wantErr: true},
		{key: "../escape", wantErr: true},
		{key: "a/../../b", wantErr: true},
		{key: "a//b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := CleanKey(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileSystemStore_PutDelete(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewFileSystemStore(root, "http://localhost:8081/files/")
	require.NoError(t, err)

	url, err := store.Put(ctx, "uploads/a/b.txt", strings.NewReader("hello"), 5, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8081/files/uploads/a/b.txt", url)

	p, err := store.Path("uploads/a/b.txt")
	require.NoError(t, err)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, store.Delete(ctx, url))
	assert.ErrorIs(t, store.Delete(ctx, url), ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "http://elsewhere/x"), ErrForeignURL)
}

func TestFileSystemStore_SizeMismatchLeavesNothing(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileSystemStore(root, "http://x/files")
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "k/short", strings.NewReader("abc"), 10, "")
	require.Error(t, err)

	p, _ := store.Path("k/short")
	_, statErr := os.Stat(p)
	assert.True(t, os.IsNotExist(statErr))

	entries, err := os.ReadDir(root + "/k")
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file must be cleaned up")
}

func TestFileSystemStore_CancelledContext(t *testing.T) {
	store, err := NewFileSystemStore(t.TempDir(), "http://x/files")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Put(ctx, "k", strings.NewReader("abc"), 3, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	url, err := store.Put(ctx, "a/b", strings.NewReader("data"), 4, "image/png")
	require.NoError(t, err)

	data, ct, err := store.Get(url)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, 1, store.Len())

	_, err = store.Put(ctx, "a/c", strings.NewReader("data"), 9, "")
	assert.Error(t, err)

	require.NoError(t, store.Delete(ctx, url))
	assert.ErrorIs(t, store.Delete(ctx, url), ErrNotFound)
	assert.Equal(t, 0, store.Len())
}

type fakeS3 struct {
	uploaded  map[string]string
	deleted   []string
	location  func(key string) string
	deleteErr error
}

func (f *fakeS3) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)
	f.uploaded[key] = string(data)
	return &manager.UploadOutput{Location: f.location(key), Key: in.Key}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.deleted = append(f.deleted, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store_PutDelete(t *testing.T) {
	tests := []struct {
		name     string
		location func(key string) string
	}{
		{name: "virtual hosted", location: func(k string) string { return "https://media.s3.us-east-1.amazonaws.com/" + k }},
		{name: "path style", location: func(k string) string { return "http://minio:9000/media/" + k }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeS3{uploaded: map[string]string{}, location: tt.location}
			store := newS3Store("media", "/huddle/", fake, fake)

			url, err := store.Put(context.Background(), "uploads/x.txt", strings.NewReader("hi"), 2, "text/plain")
			require.NoError(t, err)
			assert.Equal(t, "hi", fake.uploaded["huddle/uploads/x.txt"])

			require.NoError(t, store.Delete(context.Background(), url))
			assert.Equal(t, []string{"huddle/uploads/x.txt"}, fake.deleted)
		})
	}
}

func TestS3Store_DeleteErrors(t *testing.T) {
	fake := &fakeS3{uploaded: map[string]string{}, deleteErr: &types.NoSuchKey{}}
	store := newS3Store("media", "", fake, fake)

	assert.ErrorIs(t, store.Delete(context.Background(), "https://media.s3.amazonaws.com/a/b"), ErrNotFound)
	assert.ErrorIs(t, store.Delete(context.Background(), "https://other.s3.amazonaws.com/a/b"), ErrForeignURL)

	fake.deleteErr = errors.New("boom")
	err := store.Delete(context.Background(), "https://media.s3.amazonaws.com/a/b")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		wantErr bool
	}{
		{name: "memory", cfg: config.Config{BlobBackend: "memory"}},
		{name: "filesystem", cfg: config.Config{BlobBackend: "filesystem", BlobDir: t.TempDir()}},
		{name: "filesystem without dir", cfg: config.Config{BlobBackend: "filesystem"}, wantErr: true},
		{name: "s3 without bucket", cfg: config.Config{BlobBackend: "s3"}, wantErr: true},
		{name: "unknown", cfg: config.Config{BlobBackend: "ftp"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewFromConfig(context.Background(), &tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, got)
		})
	}
}
