package storage

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"approval-tracker/internal/domain"
)

const slotPrefix = "slots"

type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(endpoint, accessKey, secretKey string, useSSL bool, bucket string) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

func (m *MinioStore) Client() *minio.Client {
	return m.client
}

func (m *MinioStore) Bucket() string {
	return m.bucket
}

// SlotKey is the object key of the file held for one stage of a document.
func SlotKey(documentID string, stage domain.WorkflowState, filename string) string {
	return path.Join(slotPrefix, documentID, string(stage), path.Base(filename))
}

func (m *MinioStore) PutFile(ctx context.Context, documentID string, stage domain.WorkflowState, filename string, content []byte) (string, error) {
	objectKey := SlotKey(documentID, stage, filename)
	contentType := mime.TypeByExtension(path.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := m.client.PutObject(ctx, m.bucket, objectKey, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return objectKey, nil
}

func (m *MinioStore) GetFile(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data := new(bytes.Buffer)
	if _, err := data.ReadFrom(obj); err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data.Bytes(), nil
}

func (m *MinioStore) RemoveFile(ctx context.Context, objectKey string) error {
	return m.client.RemoveObject(ctx, m.bucket, objectKey, minio.RemoveObjectOptions{})
}

// MoveFile copies an object under a new key and removes the original.
// Drop-zone uploads are moved into their slot this way.
func (m *MinioStore) MoveFile(ctx context.Context, srcKey, dstKey string) error {
	_, err := m.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: m.bucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: m.bucket, Object: srcKey},
	)
	if err != nil {
		return fmt.Errorf("copy %s: %w", srcKey, err)
	}
	return m.client.RemoveObject(ctx, m.bucket, srcKey, minio.RemoveObjectOptions{})
}
