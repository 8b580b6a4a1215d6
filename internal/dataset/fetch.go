package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
)

// ErrUnsupportedSource reports a source that is neither http(s):// nor s3://.
var ErrUnsupportedSource = errors.New("unsupported dataset source")

// S3Downloader is the subset of *manager.Downloader used by the fetcher.
type S3Downloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, options ...func(*manager.Downloader)) (int64, error)
}

// Fetcher downloads dataset files once and keeps them zstd-compressed in
// CacheDir.
type Fetcher struct {
	CacheDir string
	Timeout  time.Duration
	Region   string // region for s3:// sources

	HTTPClient *http.Client
	// S3 is used for s3:// sources. When nil an anonymous client for Region
	// is created on first use.
	S3 S3Downloader

	log zerolog.Logger
}

// NewFetcher returns a fetcher caching under cacheDir.
func NewFetcher(cacheDir string, timeout time.Duration, region string, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		CacheDir:   cacheDir,
		Timeout:    timeout,
		Region:     region,
		HTTPClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "fetcher").Logger(),
	}
}

// CachePath returns the cache file used for source.
func (f *Fetcher) CachePath(source string) (string, error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrUnsupportedSource, source, err)
	}
	switch u.Scheme {
	case "http", "https", "s3":
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedSource, source)
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." || name == "" {
		return "", fmt.Errorf("%w: %q has no file name", ErrUnsupportedSource, source)
	}
	return filepath.Join(f.CacheDir, name+".zst"), nil
}

// Fetch makes sure source is cached and returns the cache path. A present
// cache file is reused without touching the network.
func (f *Fetcher) Fetch(ctx context.Context, source string) (string, error) {
	cache, err := f.CachePath(source)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(cache); err == nil {
		f.log.Debug().Str("path", cache).Msg("using cached dataset")
		return cache, nil
	}

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	f.log.Info().Str("source", source).Msg("downloading dataset")
	var data []byte
	if strings.HasPrefix(source, "s3://") {
		data, err = f.downloadS3(ctx, source)
	} else {
		data, err = f.downloadHTTP(ctx, source)
	}
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", source, err)
	}

	if err := writeCompressed(cache, data); err != nil {
		return "", fmt.Errorf("cache %s: %w", source, err)
	}
	f.log.Info().Str("path", cache).Int("bytes", len(data)).Msg("dataset cached")
	return cache, nil
}

// Open fetches source if needed and returns a reader over the decompressed
// file.
func (f *Fetcher) Open(ctx context.Context, source string) (io.ReadCloser, error) {
	cache, err := f.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(cache)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("open %s: %w", cache, err)
	}
	return &zstdFile{Decoder: dec, file: file}, nil
}

// zstdFile closes both the decoder and the underlying file.
type zstdFile struct {
	*zstd.Decoder
	file *os.File
}

func (z *zstdFile) Close() error {
	z.Decoder.Close()
	return z.file.Close()
}

func (f *Fetcher) downloadHTTP(ctx context.Context, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	client := f.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (f *Fetcher) downloadS3(ctx context.Context, source string) ([]byte, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, err
	}
	bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("%w: %q needs s3://bucket/key", ErrUnsupportedSource, source)
	}

	if f.S3 == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(f.Region),
			awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}),
		)
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		f.S3 = manager.NewDownloader(s3.NewFromConfig(cfg))
	}

	buf := manager.NewWriteAtBuffer(nil)
	if _, err := f.S3.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeCompressed stores data zstd-compressed at dst. The file is written
// under a temporary name and renamed into place.
func writeCompressed(dst string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	enc, err := zstd.NewWriter(tmp, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		tmp.Close()
		return err
	}
	if _, err := io.Copy(enc, bytes.NewReader(data)); err != nil {
		enc.Close()
		tmp.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
