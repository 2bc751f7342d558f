package snapshot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"collab-service/internal/config"
)

// ObjectStore is the subset of *minio.Client the archiver needs.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Archiver writes the final code of a session to object storage as
// snapshots/{documentId}/{unixNanos}.txt.
type Archiver struct {
	store  ObjectStore
	bucket string
	now    func() time.Time

	mu          sync.Mutex
	bucketReady bool
}

// NewMinioClient creates a MinIO client from cfg.
func NewMinioClient(cfg config.MinioConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return client, nil
}

func NewArchiver(store ObjectStore, bucket string) *Archiver {
	return &Archiver{store: store, bucket: bucket, now: time.Now}
}

// Archive uploads code. The bucket is created on first use.
func (a *Archiver) Archive(ctx context.Context, documentID, code string) error {
	if err := a.ensureBucket(ctx); err != nil {
		return err
	}

	objectName := ObjectName(documentID, a.now())
	_, err := a.store.PutObject(ctx, a.bucket, objectName, strings.NewReader(code), int64(len(code)), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
		UserMetadata: map[string]string{
			"document-id": documentID,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot %s: %w", objectName, err)
	}

	slog.Debug("Snapshot archived", "documentID", documentID, "object", objectName, "bytes", len(code))
	return nil
}

func (a *Archiver) ensureBucket(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bucketReady {
		return nil
	}

	exists, err := a.store.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := a.store.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	a.bucketReady = true
	return nil
}

// ObjectName is the key a snapshot of documentID taken at t is stored under.
func ObjectName(documentID string, t time.Time) string {
	return fmt.Sprintf("snapshots/%s/%d.txt", documentID, t.UnixNano())
}
