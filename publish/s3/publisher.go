package s3

import (
	"context"
	"errors"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/mwantia/gridindex/data"
	"github.com/mwantia/gridindex/publish"
	"github.com/spf13/afero"
)

var errBucketNotExist = errors.New("bucket does not exist")

// S3Publisher uploads index files to <bucket>/<prefix>/<name><ext>.
type S3Publisher struct {
	mu sync.RWMutex

	client     *minio.Client
	bucketName string
	prefix     string
}

var _ publish.Publisher = (*S3Publisher)(nil)

func NewS3Publisher(endpoint, bucketName, prefix, accessKey, secretKey string, useSsl bool) (*S3Publisher, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSsl,
	})
	if err != nil {
		return nil, err
	}

	return &S3Publisher{
		client:     client,
		bucketName: bucketName,
		prefix:     prefix,
	}, nil
}

// Returns the identifier name defined for this publisher
func (*S3Publisher) Name() string {
	return "s3"
}

// Open verifies that the bucket exists.
func (sp *S3Publisher) Open(ctx context.Context) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	exists, err := sp.client.BucketExists(ctx, sp.bucketName)
	if err != nil {
		return publish.Failed(err, sp.bucketName)
	}
	if !exists {
		return publish.Failed(errBucketNotExist, sp.bucketName)
	}
	return nil
}

func (sp *S3Publisher) Close(ctx context.Context) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	return nil
}

// Key returns the object key for an index file.
func (sp *S3Publisher) Key(indexPath, name string) string {
	return publish.ObjectKey(sp.prefix, indexPath, name)
}

func (sp *S3Publisher) Publish(ctx context.Context, fsys afero.Fs, indexPath, name string) error {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	f, err := fsys.Open(indexPath)
	if err != nil {
		return publish.Failed(err, indexPath)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return publish.Failed(err, indexPath)
	}

	key := sp.Key(indexPath, name)
	if _, err := sp.client.PutObject(ctx, sp.bucketName, key, f, info.Size(), minio.PutObjectOptions{
		ContentType: string(data.GetMIMEType(indexPath)),
	}); err != nil {
		return publish.Failed(err, key)
	}
	return nil
}
