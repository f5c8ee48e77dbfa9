package aws_s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/IliaW/url-scrape-archiver/config"
	"github.com/IliaW/url-scrape-archiver/internal/storage"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	crd "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var _ storage.ArtifactStore = (*S3BucketClient)(nil)

type S3BucketClient struct {
	client *s3.Client
	cfg    *config.S3Config
	log    *slog.Logger
}

func NewS3BucketClient(cfg *config.S3Config, log *slog.Logger) *S3BucketClient {
	log.Info("connecting to s3...")
	ctx := context.Background()

	s3Config, err := awsCfg.LoadDefaultConfig(ctx,
		awsCfg.WithCredentialsProvider(crd.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, "")),
		awsCfg.WithRegion(cfg.Region),
		awsCfg.WithBaseEndpoint(cfg.AwsBaseEndpoint))
	if err != nil {
		log.Error("failed to load s3 config.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	// LocalStack does not support `virtual host addressing style` that uses s3 by default.
	// For test purposes use configuration with disabled 'virtual hosted bucket addressing'.
	var s3client *s3.Client
	if cfg.AwsAccessKey == "test" {
		log.Warn("test configuration for s3")
		s3client = s3.NewFromConfig(s3Config, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	} else {
		s3client = s3.NewFromConfig(s3Config)
	}
	log.Info("connected to s3")

	return &S3BucketClient{
		client: s3client,
		cfg:    cfg,
		log:    log,
	}
}

// Put uploads the staged archive and removes the local copy.
func (bc *S3BucketClient) Put(ctx context.Context, name string, srcPath string) (string, error) {
	if !storage.ValidName(name) {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	f, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("open staged archive: %w", err)
	}
	defer f.Close()

	s3Key := bc.key(name)
	contentType := storage.ContentType(name)
	_, err = bc.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bc.cfg.BucketName,
		Key:         &s3Key,
		Body:        f,
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload artifact to s3: %w", err)
	}
	bc.log.Debug("artifact saved to s3.", slog.String("key", s3Key))

	if err = os.Remove(srcPath); err != nil {
		bc.log.Warn("failed to remove staged archive.", slog.String("err", err.Error()))
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bc.cfg.BucketName, bc.cfg.Region, s3Key), nil
}

func (bc *S3BucketClient) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	if !storage.ValidName(name) {
		return nil, 0, storage.ErrNotFound
	}
	s3Key := bc.key(name)
	out, err := bc.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bc.cfg.BucketName,
		Key:    &s3Key,
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, 0, storage.ErrNotFound
		}
		return nil, 0, fmt.Errorf("get artifact from s3: %w", err)
	}

	var size int64 = -1
	if out.ContentLength != nil {
		size = *out.ContentLength
	}

	return out.Body, size, nil
}

func (bc *S3BucketClient) key(name string) string {
	if bc.cfg.KeyPrefix == "" {
		return name
	}
	return fmt.Sprintf("%s/%s", bc.cfg.KeyPrefix, name)
}
