package s3storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOClient wraps the MinIO client for converted voice note storage
type MinIOClient struct {
	client     *minio.Client
	bucketName string
}

// NewMinIOClient creates a new MinIO client and ensures bucket exists
func NewMinIOClient(endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*MinIOClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	mc := &MinIOClient{
		client:     client,
		bucketName: bucketName,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := mc.ensureBucket(ctx); err != nil {
		return nil, err
	}

	return mc, nil
}

// ensureBucket creates the bucket if it doesn't exist
func (m *MinIOClient) ensureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = m.client.MakeBucket(ctx, m.bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// ContentTypeForExt maps an audio file extension to its MIME type.
func ContentTypeForExt(ext string) string {
	switch strings.TrimPrefix(strings.ToLower(ext), ".") {
	case "mp3":
		return "audio/mpeg"
	case "ogg":
		return "audio/ogg"
	case "wav":
		return "audio/wav"
	default:
		return "audio/opus"
	}
}

// UploadVoiceNote uploads a converted voice note file to MinIO.
// Returns the object path in MinIO.
func (m *MinIOClient) UploadVoiceNote(ctx context.Context, messageID, localPath string) (string, error) {
	// Format: media/YYYY/MM/DD/messageID.ext
	ext := filepath.Ext(localPath)
	now := time.Now()
	objectName := fmt.Sprintf(
		"media/%d/%02d/%02d/%s%s",
		now.Year(),
		now.Month(),
		now.Day(),
		messageID,
		ext,
	)

	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open voice note: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat voice note: %w", err)
	}

	_, err = m.client.PutObject(
		ctx,
		m.bucketName,
		objectName,
		file,
		info.Size(),
		minio.PutObjectOptions{
			ContentType: ContentTypeForExt(ext),
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to upload to minio: %w", err)
	}

	return objectName, nil
}

// RemoveVoiceNote deletes a voice note object from MinIO
func (m *MinIOClient) RemoveVoiceNote(ctx context.Context, objectName string) error {
	err := m.client.RemoveObject(ctx, m.bucketName, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// RemoveOlderThan deletes every media object last modified before the
// cutoff. Used by the daily cleanup job.
func (m *MinIOClient) RemoveOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0

	for object := range m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{
		Prefix:    "media/",
		Recursive: true,
	}) {
		if object.Err != nil {
			return removed, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		if !object.LastModified.Before(cutoff) {
			continue
		}
		if err := m.RemoveVoiceNote(ctx, object.Key); err != nil {
			return removed, err
		}
		removed++
	}

	return removed, nil
}
