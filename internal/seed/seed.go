// Package seed loads the reference barber set used to populate an empty
// directory.
package seed

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	domain "github.com/BruksfildServices01/barber-booking/internal/domain/booking"
)

//go:embed barbers.json
var embedded []byte

const (
	SourceEmbedded = "embedded"
	s3Scheme       = "s3://"
)

var ErrNoS3Client = errors.New("seed: s3 source configured without an s3 client")

// ObjectGetter is the slice of the S3 API the loader needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Loader struct {
	s3 ObjectGetter
}

// NewLoader builds a loader. client may be nil when no source is on S3.
func NewLoader(client ObjectGetter) *Loader {
	return &Loader{s3: client}
}

// Load reads the reference set from source: "" or "embedded" for the
// bundled file, "s3://bucket/key" for an object, anything else is a local
// path.
func (l *Loader) Load(ctx context.Context, source string) ([]domain.Barber, error) {
	switch {
	case source == "" || source == SourceEmbedded:
		return Parse(embedded)

	case strings.HasPrefix(source, s3Scheme):
		bucket, key, err := splitS3(source)
		if err != nil {
			return nil, err
		}
		return l.fromS3(ctx, bucket, key)

	default:
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("seed: read %s: %w", source, err)
		}
		return Parse(data)
	}
}

func (l *Loader) fromS3(ctx context.Context, bucket, key string) ([]domain.Barber, error) {
	if l.s3 == nil {
		return nil, ErrNoS3Client
	}

	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("seed: get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("seed: read s3://%s/%s: %w", bucket, key, err)
	}
	return Parse(data)
}

func splitS3(source string) (string, string, error) {
	rest := strings.TrimPrefix(source, s3Scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("seed: invalid s3 source %q, want s3://bucket/key", source)
	}
	return bucket, key, nil
}

// Parse decodes and checks a reference set.
func Parse(data []byte) ([]domain.Barber, error) {
	var barbers []domain.Barber
	if err := json.Unmarshal(data, &barbers); err != nil {
		return nil, fmt.Errorf("seed: decode: %w", err)
	}

	seen := make(map[string]struct{}, len(barbers))
	for i, b := range barbers {
		if !b.Valid() {
			return nil, fmt.Errorf("seed: entry %d (%q) is incomplete", i, b.ID)
		}
		if _, dup := seen[b.ID]; dup {
			return nil, fmt.Errorf("seed: duplicate barber id %q", b.ID)
		}
		seen[b.ID] = struct{}{}

		for _, svc := range b.Services {
			if svc.Name == "" || svc.Price < 0 || svc.Duration <= 0 {
				return nil, fmt.Errorf("seed: barber %q has an invalid service %q", b.ID, svc.Name)
			}
		}
	}
	return barbers, nil
}

// ======================================================
// S3 client
// ======================================================

type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// NewS3Client builds a client for AWS or an S3-compatible endpoint.
func NewS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region: cfg.Region,
	}
	if cfg.AccessKey != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}
