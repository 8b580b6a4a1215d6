package dataset

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const smallCSV = "mol_id,smiles\ngdb_1,C\ngdb_2,N\ngdb_3,CC#N\n"

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	return NewFetcher(t.TempDir(), 5*time.Second, "us-west-1", zerolog.New(nil).Level(zerolog.Disabled))
}

func csvServer(t *testing.T, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/datasets/qm9.csv" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetcherHTTPDownloadsOnce(t *testing.T) {
	var hits atomic.Int32
	srv := csvServer(t, smallCSV, &hits)
	f := newTestFetcher(t)
	source := srv.URL + "/datasets/qm9.csv"

	path, err := f.Fetch(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.CacheDir, "qm9.csv.zst"), path)

	// The cache holds zstd data, not the raw CSV.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, smallCSV, string(raw))
	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	plain, err := dec.DecodeAll(raw, nil)
	dec.Close()
	require.NoError(t, err)
	assert.Equal(t, smallCSV, string(plain))

	d, err := Load(context.Background(), f, source)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len())
	assert.Equal(t, int32(1), hits.Load(), "second load must use the cache")

	mol, err := d.Get(2)
	require.NoError(t, err)
	assert.Equal(t, 3, mol.NumHeavyAtoms())
}

func TestFetcherHTTPErrors(t *testing.T) {
	var hits atomic.Int32
	srv := csvServer(t, smallCSV, &hits)
	f := newTestFetcher(t)

	_, err := f.Fetch(context.Background(), srv.URL+"/datasets/missing.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	_, statErr := os.Stat(filepath.Join(f.CacheDir, "missing.csv.zst"))
	assert.True(t, os.IsNotExist(statErr), "failed download must not be cached")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Fetch(ctx, srv.URL+"/datasets/qm9.csv")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetcherCachePath(t *testing.T) {
	f := &Fetcher{CacheDir: "/cache"}

	p, err := f.CachePath("s3://deepchemdata/datasets/qm9.csv")
	require.NoError(t, err)
	assert.Equal(t, "/cache/qm9.csv.zst", p)

	for _, source := range []string{"ftp://host/qm9.csv", "qm9.csv", "https://host/", "::"} {
		_, err := f.CachePath(source)
		assert.ErrorIs(t, err, ErrUnsupportedSource, source)
	}
}

type fakeS3 struct {
	body   string
	bucket string
	key    string
	err    error
}

func (s *fakeS3) Download(_ context.Context, w io.WriterAt, input *s3.GetObjectInput, _ ...func(*manager.Downloader)) (int64, error) {
	s.bucket = aws.ToString(input.Bucket)
	s.key = aws.ToString(input.Key)
	if s.err != nil {
		return 0, s.err
	}
	n, err := w.WriteAt([]byte(s.body), 0)
	return int64(n), err
}

func TestFetcherS3(t *testing.T) {
	f := newTestFetcher(t)
	fake := &fakeS3{body: smallCSV}
	f.S3 = fake

	d, err := Load(context.Background(), f, "s3://deepchemdata/datasets/qm9.csv")
	require.NoError(t, err)
	assert.Equal(t, "deepchemdata", fake.bucket)
	assert.Equal(t, "datasets/qm9.csv", fake.key)
	assert.Equal(t, 3, d.Len())

	_, err = f.Fetch(context.Background(), "s3://deepchemdata/")
	assert.ErrorIs(t, err, ErrUnsupportedSource)

	boom := errors.New("access denied")
	f.S3 = &fakeS3{err: boom}
	_, err = f.Fetch(context.Background(), "s3://deepchemdata/other.csv")
	assert.ErrorIs(t, err, boom)
}
