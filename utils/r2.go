// utils/r2.go
package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var r2Client *s3.Client
var r2Bucket string
var cdnBaseURL string

// Local fallback (the original deployment served proofs from ./uploads).
var localDir string
var localBaseURL string

// InitArtifactStore configures R2 when credentials are present, otherwise
// falls back to local disk under ./uploads served via the /uploads static
// route. Proof artifacts and rendered certificates both go through here.
func InitArtifactStore() error {
	accountID := os.Getenv("CLOUDFLARE_ACCOUNT_ID")
	if accountID == "" {
		baseURL := os.Getenv("PUBLIC_BASE_URL")
		if baseURL == "" {
			baseURL = "http://localhost:5100"
		}
		UseLocalStorage("uploads", baseURL+"/uploads")
		return EnsureUploadDir()
	}

	accessKeyID := os.Getenv("R2_ACCESS_KEY_ID")
	accessKeySecret := os.Getenv("R2_ACCESS_KEY_SECRET")
	r2Bucket = os.Getenv("R2_BUCKET_NAME")
	cdnBaseURL = os.Getenv("CDN_BASE_URL")
	if cdnBaseURL == "" {
		cdnBaseURL = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
		config.WithEndpointResolver(aws.EndpointResolverFunc(
			func(service, region string) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID),
				}, nil
			}),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to load R2 config: %w", err)
	}

	r2Client = s3.NewFromConfig(cfg)
	return nil
}

// UseLocalStorage switches the artifact store to local disk. Also used by
// tests to point uploads at a temp dir.
func UseLocalStorage(dir, baseURL string) {
	r2Client = nil
	localDir = dir
	localBaseURL = strings.TrimSuffix(baseURL, "/")
}

// LocalStorageDir returns the local upload dir, or "" when R2 is active.
func LocalStorageDir() string {
	if r2Client != nil {
		return ""
	}
	if localDir == "" {
		return "uploads"
	}
	return localDir
}

// StoreArtifact uploads a multipart file under key and returns the public URL.
// key is the object key (e.g. "proofs/evt123/abc.png").
func StoreArtifact(fileHeader *multipart.FileHeader, key string) (string, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, file); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	return StoreArtifactBytes(buf.Bytes(), fileHeader.Header.Get("Content-Type"), key)
}

// StoreArtifactBytes writes raw bytes under key and returns the public URL.
func StoreArtifactBytes(data []byte, contentType, key string) (string, error) {
	if r2Client == nil {
		destPath := GetUploadPath(key)
		if err := WriteFile(data, destPath); err != nil {
			return "", fmt.Errorf("failed to write local artifact: %w", err)
		}
		return fmt.Sprintf("%s/%s", localBaseURL, key), nil
	}

	_, err := r2Client.PutObject(context.TODO(), &s3.PutObjectInput{
		Bucket:      aws.String(r2Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}

	return fmt.Sprintf("%s/%s", cdnBaseURL, key), nil
}

// DeleteArtifact removes a stored object by key. Best-effort: callers treat
// failures as non-fatal (the DB row is the authoritative record).
func DeleteArtifact(key string) error {
	if r2Client == nil {
		return os.Remove(GetUploadPath(key))
	}
	_, err := r2Client.DeleteObject(context.TODO(), &s3.DeleteObjectInput{
		Bucket: aws.String(r2Bucket),
		Key:    aws.String(key),
	})
	return err
}

// ArtifactKeyFromURL recovers the object key from a stored public URL.
func ArtifactKeyFromURL(url string) string {
	base := cdnBaseURL
	if r2Client == nil {
		base = localBaseURL
	}
	if base != "" && strings.HasPrefix(url, base+"/") {
		return strings.TrimPrefix(url, base+"/")
	}
	return ""
}
