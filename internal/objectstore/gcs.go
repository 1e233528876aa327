package objectstore

import (
	"bytes"
	"context"
	"io"
	"time"

	"cloud.google.com/go/storage"

	apperrors "github.com/kurihiro0119/gitingest-pipeline/internal/errors"
)

type googleCloudStorage struct {
	storage *storage.Client
	bucket  *storage.BucketHandle
}

// NewGoogleCloudStorage opens a client with application default credentials
func NewGoogleCloudStorage(ctx context.Context, bucketName string) (Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}

	return &googleCloudStorage{bucket: client.Bucket(bucketName), storage: client}, nil
}

func (b *googleCloudStorage) Put(ctx context.Context, obj Object) error {
	// cancelling ctx aborts the resumable upload without finalizing the object
	w := b.bucket.Object(obj.Key).NewWriter(ctx)
	w.ContentType = obj.ContentType
	w.Metadata = obj.Metadata

	if _, err := io.Copy(w, bytes.NewReader(obj.Body)); err != nil {
		w.Close()
		return apperrors.New(apperrors.ErrCodeUpload, "failed to stream to GCS", err)
	}

	if err := w.Close(); err != nil {
		return apperrors.New(apperrors.ErrCodeUpload, "failed to finalize GCS upload", err)
	}

	return nil
}

func (b *googleCloudStorage) Close() error {
	return b.storage.Close()
}
