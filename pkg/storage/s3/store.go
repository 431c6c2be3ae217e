// Package s3 provides an S3-backed storage implementation.
//
// Each file is one object. Objects are immutable, so a positioned write is a
// read-modify-write of the whole object; reads use ranged GETs. File sizes in
// this service are tiny (every write carries at most one payload) which keeps
// the rewrite cost bounded in practice.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/lockfs/internal/logger"
	"github.com/marmos91/lockfs/pkg/storage"
)

// Config holds configuration for the S3 store.
type Config struct {
	// Bucket is the S3 bucket name.
	Bucket string

	// Region is the AWS region (optional, uses SDK default if empty).
	Region string

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible services).
	Endpoint string

	// KeyPrefix is prepended to all object keys (e.g., "lockfs/").
	KeyPrefix string

	// AccessKeyID and SecretAccessKey select static credentials. When empty
	// the SDK default credential chain is used.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle forces path-style addressing (required for MinIO).
	ForcePathStyle bool
}

// Store is an S3-backed implementation of storage.Store.
type Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	closed    bool
	mu        sync.RWMutex
}

// New creates a new S3 store with an existing client.
func New(client *s3.Client, config Config) *Store {
	return &Store{
		client:    client,
		bucket:    config.Bucket,
		keyPrefix: config.KeyPrefix,
	}
}

// NewFromConfig creates a new S3 store by building a client from config.
func NewFromConfig(ctx context.Context, config Config) (*Store, error) {
	if config.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}
	if config.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if config.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
		})
	}
	if config.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	logger.Debug("S3 store configured",
		logger.KeyBucket, config.Bucket,
		"endpoint", config.Endpoint,
		"prefix", config.KeyPrefix)

	return New(client, config), nil
}

// Type returns "s3".
func (s *Store) Type() string { return "s3" }

func (s *Store) fullKey(name string) string {
	return s.keyPrefix + name
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrStoreClosed
	}
	return nil
}

// Open checks that the object exists, creating an empty one under FlagCreate.
func (s *Store) Open(ctx context.Context, name string, flags storage.Flag) (storage.Handle, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	key := s.fullKey(name)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
	case isNotFoundError(err) && flags.Has(storage.FlagCreate):
		if err := s.put(ctx, key, nil); err != nil {
			return nil, err
		}
	case isNotFoundError(err):
		return nil, fmt.Errorf("open %s: %w", name, storage.ErrNotFound)
	default:
		return nil, fmt.Errorf("s3 head object: %w", err)
	}

	return &handle{store: s, key: key, flags: flags}, nil
}

func (s *Store) put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string, rangeHeader string) ([]byte, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if rangeHeader != "" {
		input.Range = aws.String(rangeHeader)
	}

	resp, err := s.client.GetObject(ctx, input)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 object body: %w", err)
	}
	return data, nil
}

// HealthCheck verifies the bucket is accessible.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("S3 health check failed: %w", err)
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

type handle struct {
	store  *Store
	key    string
	flags  storage.Flag
	closed bool
}

func (h *handle) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if h.closed {
		return 0, storage.ErrHandleClosed
	}
	if err := storage.CheckAccess(h.flags, storage.FlagRead, off); err != nil {
		return 0, err
	}
	if err := h.store.checkOpen(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	rangeHeader := fmt.Sprintf("bytes=%d-%d", off, off+int64(len(p))-1)
	data, err := h.store.get(ctx, h.key, rangeHeader)
	if err != nil {
		if isInvalidRangeError(err) {
			return 0, nil
		}
		if isNotFoundError(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("s3 get object range: %w", err)
	}
	return copy(p, data), nil
}

func (h *handle) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if h.closed {
		return 0, storage.ErrHandleClosed
	}
	if err := storage.CheckAccess(h.flags, storage.FlagWrite, off); err != nil {
		return 0, err
	}
	if err := storage.CheckExtent(off, len(p)); err != nil {
		return 0, err
	}
	if err := h.store.checkOpen(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	data, err := h.store.get(ctx, h.key, "")
	if err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("s3 get object: %w", err)
	}
	data, err = storage.Splice(data, p, off)
	if err != nil {
		return 0, err
	}
	if err := h.store.put(ctx, h.key, data); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (h *handle) Close(ctx context.Context) error {
	if h.closed {
		return storage.ErrHandleClosed
	}
	h.closed = true
	return nil
}

// isNotFoundError checks if an error is an S3 not found error.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "NoSuchKey") ||
		strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "404")
}

// isInvalidRangeError reports a ranged GET that starts past the object end.
func isInvalidRangeError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "InvalidRange") ||
		strings.Contains(err.Error(), "416"))
}

var _ storage.Store = (*Store)(nil)
