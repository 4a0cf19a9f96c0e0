package events

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

const objectCreatedEvent = "s3:ObjectCreated:*"

// UploadEvent is a file dropped into the inbox for an existing document.
type UploadEvent struct {
	DocumentID string
	Filename   string
	ObjectKey  string
	EventName  string
}

type UploadEventSource interface {
	Run(ctx context.Context, handler func(context.Context, UploadEvent) error) error
}

type MinioUploadEventSource struct {
	client *minio.Client
	bucket string
	prefix string
	logger *zap.Logger
}

func NewMinioUploadEventSource(client *minio.Client, bucket string, prefix string, logger *zap.Logger) *MinioUploadEventSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MinioUploadEventSource{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger,
	}
}

func (s *MinioUploadEventSource) Run(ctx context.Context, handler func(context.Context, UploadEvent) error) error {
	notificationCh := s.client.ListenBucketNotification(ctx, s.bucket, s.prefix, "", []string{objectCreatedEvent})
	for {
		select {
		case <-ctx.Done():
			return nil
		case info, ok := <-notificationCh:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("minio notification stream closed")
			}
			if info.Err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("minio notification stream error: %w", info.Err)
			}
			for _, record := range info.Records {
				event, err := eventFromKey(s.prefix, record.S3.Object.Key)
				if err != nil {
					s.logger.Warn("skipping inbox object", zap.String("key", record.S3.Object.Key), zap.Error(err))
					continue
				}
				event.EventName = record.EventName
				if err := handler(ctx, event); err != nil {
					return err
				}
			}
		}
	}
}

func eventFromKey(prefix, encoded string) (UploadEvent, error) {
	objectKey, err := decodeObjectKey(encoded)
	if err != nil {
		return UploadEvent{}, err
	}
	documentID, filename, err := parseObjectKey(prefix, objectKey)
	if err != nil {
		return UploadEvent{}, err
	}
	return UploadEvent{DocumentID: documentID, Filename: filename, ObjectKey: objectKey}, nil
}

func decodeObjectKey(encoded string) (string, error) {
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(decoded) == "" {
		return "", fmt.Errorf("object key is empty")
	}
	return decoded, nil
}

// parseObjectKey splits "<prefix><document_id>/<filename>".
func parseObjectKey(prefix, objectKey string) (string, string, error) {
	cleaned := strings.ReplaceAll(objectKey, "\\", "/")
	if prefix != "" {
		if !strings.HasPrefix(cleaned, prefix) {
			return "", "", fmt.Errorf("object key %q is outside %q", objectKey, prefix)
		}
		cleaned = strings.TrimPrefix(cleaned, prefix)
	}
	cleaned = strings.Trim(cleaned, "/")
	parts := strings.Split(cleaned, "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("object key %q does not match %sdocument_id/filename", objectKey, prefix)
	}
	// Both parts are kept verbatim: the filename is validated as stored.
	documentID, filename := parts[0], parts[1]
	if strings.TrimSpace(documentID) == "" || strings.TrimSpace(filename) == "" {
		return "", "", fmt.Errorf("object key %q missing document id or filename", objectKey)
	}
	return documentID, filename, nil
}
