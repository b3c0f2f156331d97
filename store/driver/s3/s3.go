// Package s3 implements a storage engine on Amazon S3 and S3-compatible
// object stores. Directories are key prefixes; ranged reads map to ranged
// GetObject calls and writes are streamed through a multipart upload.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/retry"

	"github.com/nuln/fstream/store"
)

const (
	numRetries      = 3
	retryWait       = time.Second
	defaultPartSize = 10 * 1024 * 1024
)

// Auto-register s3 storage driver.
func init() {
	store.Register("s3", func(cfg *store.Config) (store.Engine, error) {
		return Open(context.Background(), Params{
			Bucket:          cfg.String("bucket", ""),
			Region:          cfg.String("region", ""),
			Prefix:          cfg.String("prefix", cfg.BasePath),
			Endpoint:        cfg.String("endpoint", ""),
			AccessKeyID:     cfg.String("accessKeyId", ""),
			SecretAccessKey: cfg.String("secretAccessKey", ""),
			PathStyle:       cfg.Bool("pathStyle", false),
			PartSize:        int64(cfg.Int("partSize", defaultPartSize)),
		})
	})
}

// Params configures an Engine.
type Params struct {
	Bucket          string
	Region          string
	Prefix          string // key prefix all paths live under
	Endpoint        string // custom endpoint for S3-compatible services
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
	PartSize        int64
}

// Engine implements store.Engine on an S3 bucket.
type Engine struct {
	client   *s3.Client
	bucket   string
	prefix   string
	partSize int64
}

// Open loads AWS configuration (static credentials when given, the default
// chain otherwise) and returns an Engine for params.Bucket.
func Open(ctx context.Context, params Params) (*Engine, error) {
	if params.Bucket == "" {
		return nil, fmt.Errorf("store/s3: bucket must not be empty")
	}
	if params.Region == "" {
		return nil, fmt.Errorf("store/s3: region must not be empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(params.Region),
	}
	if params.AccessKeyID != "" && params.SecretAccessKey != "" {
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(params.AccessKeyID, params.SecretAccessKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("store/s3: load config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = params.PathStyle
		if params.Endpoint != "" {
			o.BaseEndpoint = aws.String(params.Endpoint)
		}
	})
	return New(client, params.Bucket, params.Prefix, params.PartSize), nil
}

// New returns an Engine using an existing client.
func New(client *s3.Client, bucket, prefix string, partSize int64) *Engine {
	if partSize < manager.MinUploadPartSize {
		partSize = defaultPartSize
	}
	return &Engine{
		client:   client,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		partSize: partSize,
	}
}

// objectKey maps a logical path to an object key; "" is the root.
func (e *Engine) objectKey(p string) string {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "." {
		p = ""
	}
	if e.prefix == "" {
		return p
	}
	if p == "" {
		return e.prefix
	}
	return e.prefix + "/" + p
}

// dirPrefix returns the listing prefix of a directory key.
func dirPrefix(key string) string {
	if key == "" {
		return ""
	}
	return key + "/"
}

// head returns the object's metadata, retrying transient failures. A
// missing object is reported as os.ErrNotExist without retrying.
func (e *Engine) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	var out *s3.HeadObjectOutput
	err := retry.Times(numRetries).Wait(retryWait).TryWithAbort(func(attempt uint) (error, bool) {
		var err error
		out, err = e.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(e.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if isNotFound(err) {
				return os.ErrNotExist, true
			}
			return fmt.Errorf("head object: %w", err), false
		}
		return nil, true
	})
	if isNotFound(err) {
		return nil, os.ErrNotExist
	}
	return out, err
}

// hasChildren reports whether any object lives under the directory key.
func (e *Engine) hasChildren(ctx context.Context, key string) (bool, error) {
	out, err := e.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(e.bucket),
		Prefix:  aws.String(dirPrefix(key)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, err
	}
	return len(out.Contents) > 0, nil
}

func (e *Engine) Stat(ctx context.Context, p string) (*store.EntryInfo, error) {
	key := e.objectKey(p)
	if key == e.prefix {
		return &store.EntryInfo{Name: "/", Path: p, IsDir: true}, nil
	}
	out, err := e.head(ctx, key)
	if err == nil {
		return &store.EntryInfo{
			Name:    path.Base(key),
			Path:    p,
			Size:    aws.ToInt64(out.ContentLength),
			ModTime: aws.ToTime(out.LastModified),
		}, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	// Might be a directory
	if ok, listErr := e.hasChildren(ctx, key); listErr == nil && ok {
		return &store.EntryInfo{Name: path.Base(key), Path: p, IsDir: true}, nil
	}
	return nil, os.ErrNotExist
}

// Open returns a File whose reads are ranged GetObject calls.
func (e *Engine) Open(ctx context.Context, p string) (store.File, error) {
	key := e.objectKey(p)
	out, err := e.head(ctx, key)
	if err != nil {
		return nil, err
	}
	return &objectFile{ctx: ctx, engine: e, key: key, size: aws.ToInt64(out.ContentLength)}, nil
}

// objectFile implements store.File over one object.
type objectFile struct {
	ctx    context.Context
	engine *Engine
	key    string
	size   int64
}

func (f *objectFile) Size() int64 { return f.size }

func (f *objectFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("store/s3: negative offset %d", off)
	}
	if off >= f.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	end := off + int64(len(p)) - 1
	if end >= f.size {
		end = f.size - 1
	}

	out, err := f.engine.client.GetObject(f.ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.engine.bucket),
		Key:    aws.String(f.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, end)),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, os.ErrNotExist
		}
		return 0, fmt.Errorf("get object: %w", err)
	}
	defer func() { _ = out.Body.Close() }()

	n, err := io.ReadFull(out.Body, p[:end-off+1])
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return n, io.EOF
		}
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *objectFile) Close() error { return nil }

// Create streams the written bytes into a multipart upload. The object
// becomes visible when Close returns nil; a failed upload is aborted.
func (e *Engine) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	pr, pw := io.Pipe()
	w := &uploadWriter{pw: pw, done: make(chan struct{})}
	uploader := manager.NewUploader(e.client, func(u *manager.Uploader) {
		u.PartSize = e.partSize
	})
	go func() {
		defer close(w.done)
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Body:   pr,
			Bucket: aws.String(e.bucket),
			Key:    aws.String(e.objectKey(p)),
		})
		if err != nil {
			w.err = fmt.Errorf("upload object: %w", err)
		}
		_ = pr.CloseWithError(w.err)
	}()
	return w, nil
}

type uploadWriter struct {
	pw     *io.PipeWriter
	done   chan struct{}
	err    error
	closed bool
}

func (w *uploadWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, store.ErrClosed
	}
	return w.pw.Write(p)
}

func (w *uploadWriter) Close() error {
	if w.closed {
		return store.ErrClosed
	}
	w.closed = true
	_ = w.pw.Close()
	<-w.done
	return w.err
}

// keysUnder lists every object key below the directory key.
func (e *Engine) keysUnder(ctx context.Context, key string) ([]string, error) {
	var keys []string
	pager := s3.NewListObjectsV2Paginator(e.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(e.bucket),
		Prefix: aws.String(dirPrefix(key)),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (e *Engine) deleteKey(ctx context.Context, key string) error {
	_, err := e.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (e *Engine) copyKey(ctx context.Context, src, dst string) error {
	return retry.Times(numRetries).Wait(retryWait).TryWithAbort(func(attempt uint) (error, bool) {
		_, err := e.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(e.bucket),
			Key:        aws.String(dst),
			CopySource: aws.String(e.bucket + "/" + src),
		})
		if err != nil {
			return fmt.Errorf("copy object: %w", err), isNotFound(err)
		}
		return nil, true
	})
}

func (e *Engine) Remove(ctx context.Context, p string) error {
	key := e.objectKey(p)
	if _, err := e.head(ctx, key); err == nil {
		return e.deleteKey(ctx, key)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	// Try as directory
	keys, err := e.keysUnder(ctx, key)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return os.ErrNotExist
	}
	for _, k := range keys {
		if err := e.deleteKey(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Rename copies then deletes; S3 has no atomic rename.
func (e *Engine) Rename(ctx context.Context, oldPath, newPath string) error {
	oldKey, newKey := e.objectKey(oldPath), e.objectKey(newPath)
	if _, err := e.head(ctx, oldKey); err == nil {
		if err := e.copyKey(ctx, oldKey, newKey); err != nil {
			return err
		}
		return e.deleteKey(ctx, oldKey)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	keys, err := e.keysUnder(ctx, oldKey)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return os.ErrNotExist
	}
	for _, k := range keys {
		dst := newKey + strings.TrimPrefix(k, oldKey)
		if err := e.copyKey(ctx, k, dst); err != nil {
			return err
		}
		if err := e.deleteKey(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// MkdirAll is a no-op: directories exist implicitly as key prefixes.
func (e *Engine) MkdirAll(ctx context.Context, p string) error {
	return nil
}

func (e *Engine) ReadDir(ctx context.Context, dirPath string) ([]*store.EntryInfo, error) {
	prefix := dirPrefix(e.objectKey(dirPath))
	var result []*store.EntryInfo
	pager := s3.NewListObjectsV2Paginator(e.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(e.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			result = append(result, &store.EntryInfo{
				Name:  name,
				Path:  path.Join(dirPath, name),
				IsDir: true,
			})
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == "" {
				continue
			}
			result = append(result, &store.EntryInfo{
				Name:    name,
				Path:    path.Join(dirPath, name),
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
	}
	if result == nil && dirPath != "" && e.objectKey(dirPath) != e.prefix {
		return nil, os.ErrNotExist
	}
	return result, nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrNotExist) {
		return true
	}
	var apiError smithy.APIError
	if errors.As(err, &apiError) {
		switch apiError.(type) {
		case *types.NotFound, *types.NoSuchKey:
			return true
		}
		return apiError.ErrorCode() == "NotFound" || apiError.ErrorCode() == "NoSuchKey"
	}
	return false
}

// Compile-time interface checks.
var (
	_ store.Engine = (*Engine)(nil)
	_ store.File   = (*objectFile)(nil)
)
