package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/flicky/spice-storefront/internal/apperr"
	"github.com/flicky/spice-storefront/internal/config"
	"github.com/flicky/spice-storefront/internal/dto"
)

const productImagePrefix = "products"

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Presigner signs direct-to-bucket uploads.
type Presigner interface {
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
}

type S3Presigner struct {
	client *s3.PresignClient
	bucket string
}

// NewS3Presigner builds a presigner from static credentials when configured,
// falling back to the default AWS credential chain.
func NewS3Presigner(ctx context.Context, cfg config.S3Config) (*S3Presigner, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Presigner{client: s3.NewPresignClient(client), bucket: cfg.Bucket}, nil
}

func (p *S3Presigner) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	req, err := p.client.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", key, err)
	}
	return req.URL, nil
}

type UploadService struct {
	presigner  Presigner
	publicBase string
	ttl        time.Duration
	now        func() time.Time
}

func NewUploadService(presigner Presigner, cfg config.S3Config) *UploadService {
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	return &UploadService{presigner: presigner, publicBase: base, ttl: cfg.PresignTTL, now: time.Now}
}

// PresignProductImage returns a signed PUT URL for a new product image and
// the public URL the image will be served from.
func (s *UploadService) PresignProductImage(ctx context.Context, req dto.PresignRequest) (*dto.PresignResponse, error) {
	ext, ok := imageExtensions[req.ContentType]
	if !ok {
		return nil, apperr.New(apperr.ValidationFailed, "contentType: unsupported image type")
	}
	if e := strings.ToLower(path.Ext(req.FileName)); e == ".jpeg" || e == ext {
		ext = e
	}
	key := path.Join(productImagePrefix, uuid.NewString()+ext)

	url, err := s.presigner.PresignPut(ctx, key, req.ContentType, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("presign product image: %w", err)
	}
	return &dto.PresignResponse{
		UploadURL: url,
		PublicURL: s.publicBase + "/" + key,
		Key:       key,
		ExpiresAt: s.now().Add(s.ttl),
	}, nil
}
