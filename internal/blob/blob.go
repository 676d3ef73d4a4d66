package blob

import "context"

// Store abstracts the bucket-per-project blob provider.
type Store interface {
	CreateBucket(ctx context.Context, name string) error
	DeleteBucket(ctx context.Context, name string) error
	PutObject(ctx context.Context, bucket, key string, content []byte) error
	ListObjects(ctx context.Context, bucket string) ([]string, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error
	// ApplyPublicReadPolicy makes every object in the bucket publicly
	// readable.
	ApplyPublicReadPolicy(ctx context.Context, bucket string) error
	// ConfigureWebsite sets the bucket's default document.
	ConfigureWebsite(ctx context.Context, bucket, indexDocument string) error
}
