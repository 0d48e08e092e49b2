package writer

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "volflow/config"
	"volflow/logger"
)

// newS3Client builds the S3 client from the storage section, honoring a
// custom endpoint for S3-compatible stores.
func newS3Client(ctx context.Context, cfg appconfig.S3Config) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return client, nil
}

func (w *SurfaceWriter) uploadToS3(ctx context.Context, key string, data []byte) error {
	log := w.log.WithComponent("surface_writer").WithFields(logger.Fields{
		"operation": "upload_to_s3",
		"s3_key":    key,
		"data_size": len(data),
	})

	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":    "parquet",
			"compression":     w.config.Writer.Formats.Parquet.Compression,
			"volflow-version": w.config.Volflow.Version,
		},
	}

	// Finish in-flight uploads even when the run is shutting down.
	_, err := w.s3Client.PutObject(context.WithoutCancel(ctx), input)
	if err != nil {
		return fmt.Errorf("upload to S3 bucket %s: %w", w.config.Storage.S3.Bucket, err)
	}

	log.Debug("uploaded to S3")
	return nil
}
