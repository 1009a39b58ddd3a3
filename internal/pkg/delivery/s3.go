package delivery

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AssetVault/app/models"
)

// S3Signer presigns GetObject requests. Signing is local; no request reaches
// the bucket until the client follows the link.
type S3Signer struct {
	s3Client  *s3.Client
	presigner *s3.PresignClient
	config    *Config
	nowFn     func() time.Time
}

// NewS3Signer creates a presigner for the configured bucket.
func NewS3Signer(cfg *Config) (*S3Signer, error) {
	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	log.Infof("[Delivery] Presigning downloads from bucket: %s", cfg.BucketName)
	return &S3Signer{
		s3Client:  s3Client,
		presigner: s3.NewPresignClient(s3Client),
		config:    cfg,
		nowFn:     time.Now,
	}, nil
}

// Ping checks that the bucket is reachable.
func (s *S3Signer) Ping(ctx context.Context) error {
	_, err := s.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.config.BucketName),
	})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", s.config.BucketName, err)
	}
	return nil
}

func (s *S3Signer) SignDownload(ctx context.Context, product *models.Product) (Link, error) {
	key := strings.TrimLeft(product.ObjectKey, "/")
	if key == "" {
		return Link{}, ErrNoObject
	}
	name := fileName(product)
	ttl := s.config.URLTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(s.config.BucketName),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(mime.FormatMediaType("attachment", map[string]string{"filename": name})),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return Link{}, fmt.Errorf("presign %s: %w", key, err)
	}
	return Link{URL: req.URL, FileName: name, ExpiresAt: s.nowFn().Add(ttl).UTC()}, nil
}
