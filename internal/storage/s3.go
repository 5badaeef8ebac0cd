package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var ErrEmptyKey = errors.New("empty avatar key")

// S3Avatars turns stored profile picture keys into short lived GET URLs.
type S3Avatars struct {
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
}

func NewS3Avatars(ctx context.Context, region, bucket, endpoint string, ttl time.Duration) (*S3Avatars, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return NewS3AvatarsFromConfig(cfg, bucket, endpoint, ttl), nil
}

// NewS3AvatarsFromConfig uses path style addressing when a custom endpoint (MinIO) is set.
func NewS3AvatarsFromConfig(cfg aws.Config, bucket, endpoint string, ttl time.Duration) *S3Avatars {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Avatars{presign: s3.NewPresignClient(client), bucket: bucket, ttl: ttl}
}

// AvatarURL returns ref unchanged when it is already an absolute URL,
// otherwise a presigned URL for the object key ref.
func (s *S3Avatars) AvatarURL(ctx context.Context, ref string) (string, error) {
	if IsAbsoluteURL(ref) {
		return ref, nil
	}
	key := strings.TrimPrefix(ref, "/")
	if key == "" {
		return "", ErrEmptyKey
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func IsAbsoluteURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
