// Package objectstore defines the contract ros3fs consumes from an
// S3-compatible object store (spec §6 "Object-store client contract") and
// provides an aws-sdk-go-backed implementation of it.
package objectstore

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"golang.org/x/time/rate"
)

// ListedObject is one row of a bucket listing.
type ListedObject struct {
	Key     string
	Size    uint64
	MtimeMS int64
}

// ListFailure wraps a failed listing call. The core treats this as soft
// during a refresh and fatal at cold boot (spec §7).
type ListFailure struct{ Cause error }

func (e *ListFailure) Error() string { return fmt.Sprintf("list failed: %v", e.Cause) }
func (e *ListFailure) Unwrap() error { return e.Cause }

// FetchFailure wraps a failed whole-object GET for a specific key. The core
// surfaces this to the kernel adapter as an I/O error for that read.
type FetchFailure struct {
	Key   string
	Cause error
}

func (e *FetchFailure) Error() string {
	return fmt.Sprintf("fetch %q failed: %v", e.Key, e.Cause)
}
func (e *FetchFailure) Unwrap() error { return e.Cause }

// Client is the contract the core depends on. Pagination is handled
// internally by ListAll; Fetch is always a whole-object read (spec
// Non-goals: no partial-range fetches).
type Client interface {
	ListAll(ctx context.Context) ([]ListedObject, error)
	Fetch(ctx context.Context, key string) (io.ReadCloser, error)
}

// s3Client talks to a real S3-compatible endpoint via aws-sdk-go, the same
// SDK family original_source/context.cc uses (the AWS C++ SDK's S3Client,
// ListObjectsRequest/GetObjectRequest).
type s3Client struct {
	api     *s3.S3
	bucket  string
	limiter *rate.Limiter
}

// Config describes how to reach the bucket.
type Config struct {
	Endpoint string
	Bucket   string
	Region   string
	// RequestsPerSecond throttles ListAll pages and Fetch calls. Zero means
	// unlimited, matching the teacher's ratelimit package default of "no
	// limiter installed" when unconfigured.
	RequestsPerSecond float64
}

// New builds a Client for an S3-compatible endpoint. It does not perform
// any network I/O itself; the core's sanity listing (spec §4.6 step 4) is
// what validates reachability and credentials.
func New(cfg Config) (Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	sess, err := session.NewSession(&aws.Config{
		Endpoint:         aws.String(cfg.Endpoint),
		Region:           aws.String(region),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &s3Client{
		api:     s3.New(sess),
		bucket:  cfg.Bucket,
		limiter: limiter,
	}, nil
}

const listPageSize = 100000

func (c *s3Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// ListAll pages through the whole bucket with ListObjectsV2, coalescing
// every page into a single slice the way spec §6 requires ("full
// pagination handled internally").
func (c *s3Client) ListAll(ctx context.Context) ([]ListedObject, error) {
	var out []ListedObject
	var pageErr error

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.bucket),
		MaxKeys: aws.Int64(listPageSize),
	}

	err := c.api.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		if err := c.wait(ctx); err != nil {
			pageErr = err
			return false
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			lo := ListedObject{Key: *obj.Key}
			if obj.Size != nil {
				lo.Size = uint64(*obj.Size)
			}
			if obj.LastModified != nil {
				lo.MtimeMS = obj.LastModified.UnixMilli()
			}
			out = append(out, lo)
		}
		return true
	})
	if err != nil {
		return nil, &ListFailure{Cause: err}
	}
	if pageErr != nil {
		return nil, &ListFailure{Cause: pageErr}
	}
	return out, nil
}

// Fetch issues a whole-object GetObject for key, with no byte-range
// restriction (spec Non-goals).
func (c *s3Client) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := c.wait(ctx); err != nil {
		return nil, &FetchFailure{Key: key, Cause: err}
	}

	out, err := c.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &FetchFailure{Key: key, Cause: err}
	}
	return out.Body, nil
}
