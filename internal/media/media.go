// Package media issues presigned S3 URLs for message attachments. Clients
// upload bytes directly to the bucket; messages only store the object key
// returned here as their mediaRef.
package media

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"ephemeral-chat/internal/config"
)

var (
	ErrDisabled           = errors.New("media uploads are not configured")
	ErrUnsupportedContent = errors.New("only image and video uploads are supported")
)

// Upload is a presigned PUT target and the reference to store on the message.
type Upload struct {
	URL       string    `json:"upload_url"`
	MediaRef  string    `json:"media_ref"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store is the media upload collaborator.
type Store interface {
	UploadURL(ctx context.Context, userID, fileName, contentType string) (Upload, error)
	ReadURL(ctx context.Context, mediaRef string) (string, error)
	Owns(mediaRef, userID string) bool
}

// New builds an S3 store from the default AWS credential chain, or a disabled
// store when no bucket is configured.
func New(ctx context.Context, cfg config.MediaConfig) (Store, error) {
	if cfg.Bucket == "" {
		return Disabled{}, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3Store(s3.NewFromConfig(awsCfg), cfg), nil
}

// S3Store presigns uploads and reads against one bucket.
type S3Store struct {
	presigner *s3.PresignClient
	bucket    string
	prefix    string
	ttl       time.Duration
}

func NewS3Store(client *s3.Client, cfg config.MediaConfig) *S3Store {
	return &S3Store{
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		prefix:    cfg.KeyPrefix,
		ttl:       cfg.PresignTTL,
	}
}

func (s *S3Store) UploadURL(ctx context.Context, userID, fileName, contentType string) (Upload, error) {
	if !supported(contentType) {
		return Upload{}, ErrUnsupportedContent
	}
	key := objectKey(s.prefix, userID, fileName)
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return Upload{}, fmt.Errorf("presign upload: %w", err)
	}
	return Upload{URL: req.URL, MediaRef: key, ExpiresAt: time.Now().Add(s.ttl)}, nil
}

func (s *S3Store) ReadURL(ctx context.Context, mediaRef string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(mediaRef),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("presign read: %w", err)
	}
	return req.URL, nil
}

// Owns reports whether mediaRef was issued to userID.
func (s *S3Store) Owns(mediaRef, userID string) bool {
	return strings.HasPrefix(mediaRef, s.prefix+userID+"/")
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// objectKey namespaces uploads per user and keeps only a sanitized base name.
func objectKey(prefix, userID, fileName string) string {
	base := unsafeChars.ReplaceAllString(path.Base(strings.ReplaceAll(fileName, "\\", "/")), "_")
	if base == "" || base == "." || base == "_" {
		base = "upload"
	}
	return prefix + userID + "/" + uuid.NewString() + "-" + base
}

func supported(contentType string) bool {
	return strings.HasPrefix(contentType, "image/") || strings.HasPrefix(contentType, "video/")
}

// Disabled rejects uploads and resolves no read URLs.
type Disabled struct{}

func (Disabled) UploadURL(context.Context, string, string, string) (Upload, error) {
	return Upload{}, ErrDisabled
}

func (Disabled) ReadURL(context.Context, string) (string, error) { return "", nil }

// Owns accepts any reference; without a bucket there is no key namespace to check.
func (Disabled) Owns(string, string) bool { return true }
