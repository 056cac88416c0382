// Package media signs uploads against the hosted object store and prepares
// image attachments. The chat core only ever sees the resulting Attachment
// record; everything here is a boundary to the CDN.
package media

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

type Store struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	uploader   *manager.Uploader
	bucket     string
	region     string
	presignTTL time.Duration
}

func NewStore(ctx context.Context, region, bucket string, presignTTL time.Duration) (*Store, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg)
	return &Store{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		uploader:   manager.NewUploader(client),
		bucket:     bucket,
		region:     region,
		presignTTL: presignTTL,
	}, nil
}

// UploadTicket is the one-time signed upload descriptor handed to clients.
// The client PUTs the file to URL; FileURL is where it becomes readable.
type UploadTicket struct {
	Key     string `json:"key"`
	URL     string `json:"url"`
	FileURL string `json:"file_url"`
}

// SignUpload mints an upload descriptor for a fresh object key under the
// user's prefix.
func (s *Store) SignUpload(ctx context.Context, userID, filename, contentType string) (*UploadTicket, error) {
	key := fmt.Sprintf("%s/%s_%s", userID, uuid.NewString(), filename)
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		return nil, err
	}
	return &UploadTicket{
		Key:     key,
		URL:     req.URL,
		FileURL: s.publicURL(key),
	}, nil
}

// SignDownload mints a temporary read URL for a stored object.
func (s *Store) SignDownload(ctx context.Context, key string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func (s *Store) publicURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}
