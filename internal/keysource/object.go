package keysource

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/songauth/internal/config"
)

// maxKeyObjectSize bounds how much of a key object is read. PEM RSA keys are
// a few KiB at most.
const maxKeyObjectSize = 64 << 10

// ObjectStore wraps MinIO/S3 access to the bucket holding key material.
type ObjectStore struct {
	client *minio.Client
	bucket string
	region string
}

// NewObjectStore creates a MinIO client from the Config.
func NewObjectStore(cfg *config.Config) (*ObjectStore, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &ObjectStore{client: client, bucket: cfg.KeyBucket, region: cfg.S3Region}, nil
}

// EnsureBucket creates the key bucket if it does not exist yet.
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Object returns a Source reading objectKey from the store's bucket.
func (s *ObjectStore) Object(objectKey string) *ObjectSource {
	return &ObjectSource{store: s, key: objectKey}
}

// ObjectSource reads PEM bytes from one object.
type ObjectSource struct {
	store *ObjectStore
	key   string
}

// Fetch downloads the object.
func (o *ObjectSource) Fetch(ctx context.Context) ([]byte, error) {
	obj, err := o.store.client.GetObject(ctx, o.store.bucket, o.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, o.wrap(err)
	}
	defer obj.Close()
	data, err := io.ReadAll(io.LimitReader(obj, maxKeyObjectSize+1))
	if err != nil {
		return nil, o.wrap(err)
	}
	if len(data) > maxKeyObjectSize {
		return nil, fmt.Errorf("key object %s is larger than %d bytes", o, maxKeyObjectSize)
	}
	return data, nil
}

// Put uploads PEM bytes to the object, replacing any previous version.
func (o *ObjectSource) Put(ctx context.Context, data []byte) error {
	opts := minio.PutObjectOptions{ContentType: "application/x-pem-file"}
	_, err := o.store.client.PutObject(ctx, o.store.bucket, o.key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return fmt.Errorf("upload key object %s: %w", o, err)
	}
	return nil
}

func (o *ObjectSource) wrap(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNoKey, o)
	}
	return fmt.Errorf("get key object: %w", err)
}

func (o *ObjectSource) String() string {
	return "s3://" + o.store.bucket + "/" + o.key
}
