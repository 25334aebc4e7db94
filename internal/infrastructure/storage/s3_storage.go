// Package storage guarda los artefactos de los comprobantes (XML firmado, CDR, PDF).
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/billing"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/pkg/config"
	"github.com/jhoicas/facturacion-sunat-api/pkg/logger"
)

// S3Storage guarda artefactos en un bucket S3 (o compatible, con endpoint propio).
type S3Storage struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

var _ billing.ArtifactStorage = (*S3Storage)(nil)

// NewS3Storage crea el cliente S3 con credenciales estáticas si se configuran.
func NewS3Storage(ctx context.Context, cfg config.StorageConfig) (*S3Storage, error) {
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: cargar configuración aws: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return &S3Storage{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
	}, nil
}

func (s *S3Storage) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", &domain.ConnectionError{Op: "s3.put", Err: err}
	}
	return key, nil
}

func (s *S3Storage) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("artefacto %s: %w", key, domain.ErrNotFound)
		}
		return nil, &domain.ConnectionError{Op: "s3.get", Err: err}
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("storage: leer %s: %w", key, err)
	}
	return data, nil
}

// New elige S3 si hay bucket configurado; si no, disco local.
func New(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (billing.ArtifactStorage, error) {
	if cfg.Bucket != "" {
		st, err := NewS3Storage(ctx, cfg)
		if err != nil {
			return nil, err
		}
		log.Info().Str("bucket", cfg.Bucket).Str("region", cfg.Region).Msg("almacenamiento de artefactos en S3")
		return st, nil
	}
	log.Warn().Str("dir", cfg.LocalDir).Msg("S3_BUCKET vacío: artefactos en disco local")
	return NewLocalStorage(cfg.LocalDir)
}
