package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"supplierstock/internal/parsing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/xuri/excelize/v2"
)

// ObjectStore is the subset of the minio client the snapshot store uses.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	PresignedGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
	Remove(ctx context.Context, bucket, key string) error
	EnsureBucket(ctx context.Context, bucket string) error
}

type minioObjects struct {
	client *minio.Client
}

func NewMinioObjects(endpoint, accessKey, secretKey string, useSSL bool) (ObjectStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &minioObjects{client: client}, nil
}

func (m *minioObjects) Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error {
	if size <= 0 {
		size = -1
	}
	_, err := m.client.PutObject(ctx, bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (m *minioObjects) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; Stat surfaces a missing key here instead of on first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}

func (m *minioObjects) PresignedGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	url, err := m.client.PresignedGetObject(ctx, bucket, key, expiry, nil)
	if err != nil {
		return "", err
	}
	return url.String(), nil
}

func (m *minioObjects) Remove(ctx context.Context, bucket, key string) error {
	return m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
}

func (m *minioObjects) EnsureBucket(ctx context.Context, bucket string) error {
	found, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if !found {
		return m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
	}
	return nil
}

// SnapshotStore keeps uploaded price list workbooks in one bucket and reads
// them back as cell grids.
type SnapshotStore struct {
	objects ObjectStore
	bucket  string
}

func NewSnapshotStore(objects ObjectStore, bucket string) *SnapshotStore {
	return &SnapshotStore{objects: objects, bucket: bucket}
}

func (s *SnapshotStore) EnsureBucket(ctx context.Context) error {
	return s.objects.EnsureBucket(ctx, s.bucket)
}

func (s *SnapshotStore) Upload(ctx context.Context, fileKey string, reader io.Reader, size int64, contentType string) error {
	return s.objects.Put(ctx, s.bucket, fileKey, reader, size, contentType)
}

func (s *SnapshotStore) PresignedURL(ctx context.Context, fileKey string, expiry time.Duration) (string, error) {
	return s.objects.PresignedGet(ctx, s.bucket, fileKey, expiry)
}

func (s *SnapshotStore) Delete(ctx context.Context, fileKey string) error {
	return s.objects.Remove(ctx, s.bucket, fileKey)
}

// OpenSheet downloads the workbook and returns every row of sheetName.
func (s *SnapshotStore) OpenSheet(ctx context.Context, fileKey, sheetName string) ([][]parsing.Cell, error) {
	body, err := s.objects.Get(ctx, s.bucket, fileKey)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", fileKey, err)
	}
	defer body.Close()

	return ReadSheet(body, sheetName)
}

// ReadSheet parses an xlsx/xlsm stream. Cells come back as raw strings and
// the row parser converts them.
func ReadSheet(r io.Reader, sheetName string) ([][]parsing.Cell, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(sheetName); err != nil || idx < 0 {
		return nil, fmt.Errorf("sheet '%s' not found, workbook has %v", sheetName, f.GetSheetList())
	}
	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet '%s': %w", sheetName, err)
	}

	out := make([][]parsing.Cell, len(rows))
	for i, row := range rows {
		cells := make([]parsing.Cell, len(row))
		for j, v := range row {
			cells[j] = v
		}
		out[i] = cells
	}
	return out, nil
}
