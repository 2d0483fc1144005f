package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/APTrust/preservation-fixity/fixity"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var _ fixity.ObjectRegistry = (*S3Registry)(nil)
var _ fixity.Catalog = (*S3Registry)(nil)

// S3Registry resolves object identifiers to S3 keys in a single
// bucket. The object identifier is the key. Expected digests come from
// user metadata named for the algorithm, as in x-amz-meta-sha256,
// which is how preservation storage records them at ingest.
type S3Registry struct {
	Client *minio.Client
	Bucket string

	// Prefix limits ForEachObject to keys under it. Empty means the
	// whole bucket.
	Prefix string
}

// NewS3Registry returns a registry backed by the S3 service at host.
func NewS3Registry(host, accessKeyID, secretAccessKey, bucket string, useSSL bool) (*S3Registry, error) {
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
		Region: "us-east-1",
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create S3 client for %s: %w", host, err)
	}
	return &S3Registry{
		Client: client,
		Bucket: bucket,
	}, nil
}

// OpenContentStream returns the object's content. The caller must
// close it. The stream is tied to ctx: cancelling ctx fails the next
// Read.
func (r *S3Registry) OpenContentStream(ctx context.Context, objectID string) (io.ReadCloser, error) {
	obj, err := r.Client.GetObject(ctx, r.Bucket, objectID, minio.GetObjectOptions{})
	if err != nil {
		return nil, r.classify(objectID, err)
	}
	// GetObject is lazy. Stat sends the request, so a missing key
	// shows up here and not on the first Read.
	if _, err = obj.Stat(); err != nil {
		obj.Close()
		return nil, r.classify(objectID, err)
	}
	return obj, nil
}

// ExpectedDigest returns the digest stored in the object's alg
// metadata, normalized to lowercase hex.
func (r *S3Registry) ExpectedDigest(ctx context.Context, objectID, alg string) (string, bool, error) {
	info, err := r.Client.StatObject(ctx, r.Bucket, objectID, minio.StatObjectOptions{})
	if err != nil {
		return "", false, r.classify(objectID, err)
	}
	for name, value := range info.UserMetadata {
		if strings.EqualFold(name, alg) && strings.TrimSpace(value) != "" {
			return fixity.NormalizeDigest(value), true, nil
		}
	}
	if value := info.Metadata.Get("X-Amz-Meta-" + alg); strings.TrimSpace(value) != "" {
		return fixity.NormalizeDigest(value), true, nil
	}
	return "", false, nil
}

// ForEachObject calls fn with every key in the bucket under Prefix,
// in key order. Keys ending in a slash are folder markers and are
// skipped.
func (r *S3Registry) ForEachObject(ctx context.Context, fn func(objectID string) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	objects := r.Client.ListObjects(ctx, r.Bucket, minio.ListObjectsOptions{
		Prefix:    r.Prefix,
		Recursive: true,
	})
	for info := range objects {
		if info.Err != nil {
			return fmt.Errorf("error listing %s/%s: %w", r.Bucket, r.Prefix, info.Err)
		}
		if strings.HasSuffix(info.Key, "/") {
			continue
		}
		if err := fn(info.Key); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (r *S3Registry) classify(objectID string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == http.StatusNotFound {
		return &fixity.NotFoundError{ObjectID: objectID, Err: err}
	}
	return fmt.Errorf("S3 error for %s/%s: %w", r.Bucket, objectID, err)
}
