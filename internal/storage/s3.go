package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Config holds S3/MinIO configuration
type S3Config struct {
	Endpoint        string // e.g., "http://localhost:9000" for MinIO
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
	PublicURL       string // Public URL prefix of the bucket
	Prefix          string // Key prefix for transcripts
}

// ObjectPutter is the subset of the S3 API the archive uses
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// TranscriptArchive stores conversation transcripts in an S3-compatible bucket
type TranscriptArchive struct {
	client    ObjectPutter
	bucket    string
	publicURL string
	prefix    string
	now       func() time.Time
}

// NewTranscriptArchive creates an archive backed by a new S3 client
func NewTranscriptArchive(cfg S3Config) *TranscriptArchive {
	client := s3.New(s3.Options{
		Region:       cfg.Region,
		BaseEndpoint: aws.String(cfg.Endpoint),
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
		UsePathStyle: true, // Required for MinIO
	})

	return NewTranscriptArchiveWithClient(client, cfg)
}

// NewTranscriptArchiveWithClient creates an archive on top of an existing client
func NewTranscriptArchiveWithClient(client ObjectPutter, cfg S3Config) *TranscriptArchive {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "transcripts"
	}
	return &TranscriptArchive{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: cfg.PublicURL,
		prefix:    prefix,
		now:       time.Now,
	}
}

// PutTranscript uploads a JSON transcript and returns its key and public URL.
// Keys are unique per upload so repeated archives never overwrite each other.
func (a *TranscriptArchive) PutTranscript(ctx context.Context, conversationID string, body []byte) (string, string, error) {
	key := fmt.Sprintf("%s/%s/%s/%s.json",
		a.prefix,
		conversationID,
		a.now().UTC().Format("2006/01/02"),
		uuid.New().String(),
	)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return "", "", fmt.Errorf("uploading to s3: %w", err)
	}

	return key, fmt.Sprintf("%s/%s", a.publicURL, key), nil
}
