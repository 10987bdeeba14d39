package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"filevault-backend/internal/shared/storage/object"
)

const defaultListPageSize = 1000

// Options configures the S3-backed store. Endpoint and static credentials are
// only needed for S3-compatible backends such as MinIO.
type Options struct {
	Region          string
	Bucket          string
	Prefix          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	KMSKeyID        string
	ListPageSize    int32
}

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store implements ObjectStore using Amazon S3.
type Store struct {
	client   s3API
	presign  presignAPI
	bucket   string
	region   string
	prefix   string
	endpoint string
	kmsKeyID string
	pageSize int32
}

// New creates a new S3-backed object store.
func New(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return newStore(client, s3.NewPresignClient(client), opts, cfg.Region), nil
}

func newStore(client s3API, presign presignAPI, opts Options, region string) *Store {
	pageSize := opts.ListPageSize
	if pageSize <= 0 {
		pageSize = defaultListPageSize
	}
	return &Store{
		client:   client,
		presign:  presign,
		bucket:   opts.Bucket,
		region:   region,
		prefix:   normalizePrefix(opts.Prefix),
		endpoint: strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/"),
		kmsKeyID: strings.TrimSpace(opts.KMSKeyID),
		pageSize: pageSize,
	}
}

// Put uploads data under the given storage key.
func (s *Store) Put(ctx context.Context, storageKey, contentType string, r io.Reader, public bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	objectKey := applyPrefix(s.prefix, storageKey)
	counter := &countingReader{r: r}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        counter,
		ContentType: aws.String(contentType),
	}
	if public {
		input.ACL = s3types.ObjectCannedACLPublicRead
	}
	if s.kmsKeyID != "" {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
		input.SSEKMSKeyId = aws.String(s.kmsKeyID)
	} else {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return 0, fmt.Errorf("s3 put object bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}
	return counter.n, nil
}

// SignURL presigns a GET for the key. Presigning never talks to S3, so the
// object is checked with HEAD first to surface missing keys.
func (s *Store) SignURL(ctx context.Context, storageKey string, validity time.Duration) (string, error) {
	objectKey := applyPrefix(s.prefix, storageKey)
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}); err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("s3 head object key=%s: %w", objectKey, object.ErrObjectNotFound)
		}
		return "", fmt.Errorf("s3 head object bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(validity))
	if err != nil {
		return "", fmt.Errorf("s3 presign get key=%s: %w", objectKey, err)
	}
	return req.URL, nil
}

// PublicURL returns the virtual-hosted URL, or a path-style URL when a custom endpoint is set.
func (s *Store) PublicURL(storageKey string) string {
	objectKey := escapeKey(applyPrefix(s.prefix, storageKey))
	if s.endpoint != "" {
		return s.endpoint + "/" + s.bucket + "/" + objectKey
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, objectKey)
}

// Delete removes an object. Missing keys are treated as already deleted.
func (s *Store) Delete(ctx context.Context, storageKey string) error {
	objectKey := applyPrefix(s.prefix, storageKey)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("s3 delete object bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}
	return nil
}

// ListPage fetches one ListObjectsV2 page under the store prefix.
func (s *Store) ListPage(ctx context.Context, token string) (object.Page, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(s.pageSize),
	}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix + "/")
	}
	if token != "" {
		input.ContinuationToken = aws.String(token)
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return object.Page{}, fmt.Errorf("s3 list objects bucket=%s: %w", s.bucket, err)
	}

	page := object.Page{Objects: make([]object.ObjectInfo, 0, len(out.Contents))}
	for _, obj := range out.Contents {
		key := stripPrefix(s.prefix, aws.ToString(obj.Key))
		if key == "" {
			continue
		}
		page.Objects = append(page.Objects, object.ObjectInfo{
			Key:          key,
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

func isNotFound(err error) bool {
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func normalizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

// applyPrefix maps a storage key to its S3 object key. The key is used
// verbatim so that stripPrefix(applyPrefix(k)) == k for every listed key.
func applyPrefix(prefix, key string) string {
	cleanPrefix := strings.Trim(prefix, "/")
	if cleanPrefix == "" {
		return key
	}
	return cleanPrefix + "/" + key
}

func stripPrefix(prefix, objectKey string) string {
	if prefix == "" {
		return objectKey
	}
	return strings.TrimPrefix(objectKey, prefix+"/")
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

var _ object.ObjectStore = (*Store)(nil)
