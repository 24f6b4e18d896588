package objectstorage

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Storage implements Storage against AWS S3 (or an S3-compatible
// endpoint, for local development against MinIO/LocalStack) via
// aws-sdk-go-v2.
type S3Storage struct {
	client *s3.Client
}

// NewS3Storage builds an S3Storage client. endpointURL, when non-empty,
// overrides the default AWS endpoint resolution so a coordination core
// running in a test or local-dev cluster can point at a MinIO sidecar
// instead of real S3.
func NewS3Storage(ctx context.Context, endpointURL string) (*S3Storage, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpointURL != "" {
			o.BaseEndpoint = aws.String(endpointURL)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{client: client}, nil
}

// ListPrefix implements Storage.
func (s *S3Storage) ListPrefix(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	bucket, key, err := splitS3URI(prefix)
	if err != nil {
		return nil, err
	}

	var objects []ObjectInfo

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(key),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3 objects under %s: %w", prefix, err)
		}

		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{
				URI:  "s3://" + bucket + "/" + aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			})
		}
	}

	return objects, nil
}

func splitS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3:// uri: %s", uri)
	}

	bucket, key, _ = strings.Cut(rest, "/")

	return bucket, key, nil
}
