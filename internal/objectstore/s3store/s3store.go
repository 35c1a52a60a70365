// Package s3store implements objectstore.Store on Amazon S3 and S3-compatible services.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"jobseries/internal/objectstore"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Store reads job output from S3.
type Store struct {
	client *s3.Client
}

// Options tune the S3 client.
type Options struct {
	UsePathStyle bool // required by most S3-compatible endpoints
}

// New creates a store from an SDK configuration.
func New(cfg aws.Config, opts Options) *Store {
	return &Store{
		client: s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.UsePathStyle = opts.UsePathStyle
		}),
	}
}

func (s *Store) ListBuckets(ctx context.Context) ([]string, error) {
	out, err := s.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	names := make([]string, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		names = append(names, aws.ToString(b.Name))
	}
	return names, nil
}

func (s *Store) ListObjects(ctx context.Context, bucket, prefix string) ([]objectstore.Object, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	var objects []objectstore.Object
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			if isCode(err, "NoSuchBucket") {
				return nil, fmt.Errorf("%w: %s", objectstore.ErrBucketNotFound, bucket)
			}
			return nil, fmt.Errorf("list objects %s/%s: %w", bucket, prefix, err)
		}
		for _, o := range page.Contents {
			objects = append(objects, objectstore.Object{
				Key:  aws.ToString(o.Key),
				Size: aws.ToInt64(o.Size),
			})
		}
	}
	return objects, nil
}

func (s *Store) GetObject(ctx context.Context, bucket, key string) (*objectstore.Blob, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) || isCode(err, "NoSuchKey", "NotFound") {
			return nil, fmt.Errorf("%w: %s/%s", objectstore.ErrObjectNotFound, bucket, key)
		}
		return nil, fmt.Errorf("get object %s/%s: %w", bucket, key, err)
	}

	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return &objectstore.Blob{
		Key:  key,
		Size: size,
		Body: out.Body,
	}, nil
}

func isCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, c := range codes {
		if apiErr.ErrorCode() == c {
			return true
		}
	}
	return false
}
