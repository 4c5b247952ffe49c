package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/magvec/blobstore"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.HeadObjectOutput)
	return out, args.Error(1)
}

func (m *mockClient) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func keyIs(key string) any {
	return mock.MatchedBy(func(in *s3.HeadObjectInput) bool { return aws.ToString(in.Key) == key })
}

func rangeIs(r string) any {
	return mock.MatchedBy(func(in *s3.GetObjectInput) bool { return aws.ToString(in.Range) == r })
}

func body(s string) *s3.GetObjectOutput {
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte(s)))}
}

// bucket serves objects from memory and honors range requests the way S3
// does, which is enough for the transfer manager.
type bucket struct {
	objects map[string][]byte
	gets    atomic.Int64
}

func (b *bucket) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	data, ok := b.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (b *bucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b.gets.Add(1)
	data, ok := b.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	size := int64(len(data))
	start, end := int64(0), size-1
	if r := aws.ToString(in.Range); r != "" {
		if _, err := fmt.Sscanf(r, "bytes=%d-%d", &start, &end); err != nil {
			return nil, err
		}
		end = min(end, size-1)
	}
	part := data[start : end+1]
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(part)),
		ContentLength: aws.Int64(int64(len(part))),
		ContentRange:  aws.String(fmt.Sprintf("bytes %d-%d/%d", start, end, size)),
	}, nil
}

func TestStore_OpenStatsObject(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "embeddings", "glove")

	client.On("HeadObject", mock.Anything, keyIs("glove/missing.magvec")).Return(nil, &types.NotFound{}).Once()
	client.On("HeadObject", mock.Anything, keyIs("glove/6B.50d.magvec")).
		Return(&s3.HeadObjectOutput{ContentLength: aws.Int64(4096)}, nil).Once()

	_, err := store.Open(context.Background(), "missing.magvec")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	blob, err := store.Open(context.Background(), "6B.50d.magvec")
	require.NoError(t, err)
	assert.Equal(t, int64(4096), blob.Size())
	require.NoError(t, blob.Close())

	client.AssertExpectations(t)
}

func TestBlob_ReadAtClampsToSize(t *testing.T) {
	client := new(mockClient)
	blob := &s3Blob{client: client, bucket: "embeddings", key: "w.magvec", size: 12}

	client.On("GetObject", mock.Anything, rangeIs("bytes=0-3")).Return(body("SQLi"), nil).Once()
	client.On("GetObject", mock.Anything, rangeIs("bytes=10-11")).Return(body("ab"), nil).Once()

	head := make([]byte, 4)
	n, err := blob.ReadAt(context.Background(), head, 0)
	require.NoError(t, err)
	assert.Equal(t, "SQLi", string(head[:n]))

	buf := make([]byte, 8)
	n, err = blob.ReadAt(context.Background(), buf, 10)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "ab", string(buf[:n]))

	_, err = blob.ReadAt(context.Background(), buf, 12)
	assert.ErrorIs(t, err, io.EOF)
	_, err = blob.ReadRange(context.Background(), 12, 1)
	assert.ErrorIs(t, err, io.EOF)

	client.AssertExpectations(t)
}

func TestBlob_ReadRange(t *testing.T) {
	b := &bucket{objects: map[string][]byte{"v/w.magvec": []byte("0123456789")}}
	blob, err := NewStore(b, "embeddings", "v").Open(context.Background(), "w.magvec")
	require.NoError(t, err)

	rc, err := blob.ReadRange(context.Background(), 7, 10)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "789", string(got))
}

func TestStore_DownloadInParts(t *testing.T) {
	data := bytes.Repeat([]byte("magvec!"), 1000)
	b := &bucket{objects: map[string][]byte{"models/w.magvec": data}}
	store := NewStore(b, "embeddings", "models")
	store.opts.partSize = 1024
	store.opts.concurrency = 3

	dst := filepath.Join(t.TempDir(), "w.magvec")
	require.NoError(t, store.Download(context.Background(), "w.magvec", dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.GreaterOrEqual(t, b.gets.Load(), int64(len(data)/1024))

	err = store.Download(context.Background(), "absent.magvec", filepath.Join(t.TempDir(), "x"))
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestFetch_UsesDownloader(t *testing.T) {
	data := []byte("SQLite format 3\x00 rest of the store file")
	b := &bucket{objects: map[string][]byte{"models/w.magvec": data}}
	store := NewStore(b, "embeddings", "models")
	dir := t.TempDir()

	path, err := blobstore.Fetch(context.Background(), store, "w.magvec", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "w.magvec"), path)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	gets := b.gets.Load()
	_, err = blobstore.Fetch(context.Background(), store, "w.magvec", dir)
	require.NoError(t, err)
	assert.Equal(t, gets, b.gets.Load())
}
