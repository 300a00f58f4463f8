package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// uploadTimeout bounds a single artifact upload.
const uploadTimeout = 2 * time.Minute

// GCSUploader uploads export artifacts to a Cloud Storage bucket.
type GCSUploader struct {
	Bucket string
	Prefix string

	// CredentialsFile is a service-account key. Empty means Application
	// Default Credentials.
	CredentialsFile string
}

// Upload writes data to the bucket under Prefix/name and returns the gs://
// URI of the object.
func (u *GCSUploader) Upload(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if u.Bucket == "" {
		return "", errors.New("gcs: bucket is not configured")
	}

	client, err := storage.NewClient(ctx, clientOptions(u.CredentialsFile)...)
	if err != nil {
		return "", fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	objectName := ObjectName(u.Prefix, name)
	w := client.Bucket(u.Bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy artifact to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", u.Bucket, objectName), nil
}

// ObjectName joins prefix and name into an object path.
func ObjectName(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

func clientOptions(credentialsFile string) []option.ClientOption {
	if credentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(credentialsFile)}
}
