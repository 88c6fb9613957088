// Package s3 archives uploaded recordings in an S3 compatible bucket.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path"

	"github.com/Rrens/codemuse/internal/config"
	"github.com/Rrens/codemuse/internal/speech"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Archive stores raw audio next to the transcripts made from it
type Archive struct {
	client *awss3.Client
	bucket string
}

// NewArchive builds an S3 client from config. Static credentials and a custom
// endpoint are used when set, which covers MinIO and other S3 compatibles.
func NewArchive(ctx context.Context, cfg config.S3Config) (*Archive, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Archive{client: client, bucket: cfg.Bucket}, nil
}

// Store uploads the recording under audio/<chatID>/<random><ext> and returns the key
func (a *Archive) Store(ctx context.Context, chatID uuid.UUID, audio speech.Audio) (string, error) {
	key := Key(chatID, audio)

	input := &awss3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(audio.Data),
	}
	if audio.ContentType != "" {
		input.ContentType = aws.String(audio.ContentType)
	}

	if _, err := a.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to archive audio: %w", err)
	}

	log.Debug().
		Str("bucket", a.bucket).
		Str("key", key).
		Int("bytes", len(audio.Data)).
		Msg("Audio archived")

	return key, nil
}

// Key derives the object key for a recording
func Key(chatID uuid.UUID, audio speech.Audio) string {
	ext := path.Ext(audio.Filename)
	if ext == "" {
		if exts, _ := mime.ExtensionsByType(audio.ContentType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	return path.Join("audio", chatID.String(), uuid.NewString()+ext)
}
