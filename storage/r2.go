// storage/r2.go
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// ObjectAPI is the part of the S3 client the R2 store uses.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	Prefix          string // e.g. "duel-data/"
}

// R2Store keeps each document as one object in a Cloudflare R2 bucket.
type R2Store struct {
	client ObjectAPI
	bucket string
	prefix string
}

func NewR2Store(client ObjectAPI, bucket, prefix string) *R2Store {
	return &R2Store{client: client, bucket: bucket, prefix: prefix}
}

// NewR2Client builds an S3 client pointed at the account's R2 endpoint.
func NewR2Client(ctx context.Context, c R2Config) (*s3.Client, error) {
	if c.AccountID == "" || c.Bucket == "" {
		return nil, errors.New("CLOUDFLARE_ACCOUNT_ID and R2_BUCKET_NAME are required for the r2 store")
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.AccessKeyID, c.AccessKeySecret, "",
		)),
		config.WithEndpointResolver(aws.EndpointResolverFunc(
			func(service, region string) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID),
				}, nil
			}),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	return s3.NewFromConfig(cfg), nil
}

func (s *R2Store) key(name string) string {
	return s.prefix + name + ".json"
}

// Load treats a missing object or an unparsable body as an empty document.
// Transport failures are returned so a flaky bucket never reads as "no data".
func (s *R2Store) Load(ctx context.Context, name string) (Document, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isNotFound(err) {
			return Document{}, nil
		}
		return nil, fmt.Errorf("failed to fetch %s from R2: %w", s.key(name), err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from R2: %w", s.key(name), err)
	}

	doc, err := decodeDocument(raw)
	if err != nil {
		log.Printf("⚠️  [STORE] Corrupt R2 object %s, using empty document: %v", s.key(name), err)
		return Document{}, nil
	}
	return doc, nil
}

// Save replaces the object; a PUT is atomic on R2.
func (s *R2Store) Save(ctx context.Context, name string, doc Document) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(name)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to R2: %w", s.key(name), err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
