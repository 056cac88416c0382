package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/relaychat/relay/internal/domain"
)

const (
	maxUploadBytes = 20 << 20
	thumbMaxEdge   = 512
)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
}

// IsImage reports whether the filename looks like an image we can thumbnail.
func IsImage(filename string) bool {
	return imageExts[strings.ToLower(path.Ext(filename))]
}

// UploadImage stores the original and a bounded-size thumbnail, returning the
// attachment record with intrinsic dimensions filled in.
func (s *Store) UploadImage(ctx context.Context, userID, filename, contentType string, r io.Reader) (*domain.Attachment, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > maxUploadBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", maxUploadBytes)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()

	key := fmt.Sprintf("%s/%s_%s", userID, uuid.NewString(), filename)
	if err := s.put(ctx, key, contentType, bytes.NewReader(raw)); err != nil {
		return nil, err
	}

	thumb := imaging.Fit(img, thumbMaxEdge, thumbMaxEdge, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	thumbKey := "thumb/" + key
	if err := s.put(ctx, thumbKey, "image/jpeg", &buf); err != nil {
		return nil, err
	}

	return &domain.Attachment{
		ID:          uuid.NewString(),
		Name:        filename,
		URL:         s.publicURL(key),
		ContentType: contentType,
		Size:        int64(len(raw)),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
	}, nil
}

// UploadFile stores a non-image attachment as-is.
func (s *Store) UploadFile(ctx context.Context, userID, filename, contentType string, r io.Reader) (*domain.Attachment, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > maxUploadBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", maxUploadBytes)
	}
	key := fmt.Sprintf("%s/%s_%s", userID, uuid.NewString(), filename)
	if err := s.put(ctx, key, contentType, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return &domain.Attachment{
		ID:          uuid.NewString(),
		Name:        filename,
		URL:         s.publicURL(key),
		ContentType: contentType,
		Size:        int64(len(raw)),
	}, nil
}

func (s *Store) put(ctx context.Context, key, contentType string, body io.Reader) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Body:        body,
	})
	return err
}
