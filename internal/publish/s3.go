package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"maat-go/internal/config"
	"maat-go/internal/maat"
)

// S3API is the subset of the S3 client the publisher uses.
type S3API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Publisher uploads catalog documents to an S3 bucket under a prefix.
type S3Publisher struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Publisher creates a publisher over an existing client.
func NewS3Publisher(client S3API, bucket, prefix string) *S3Publisher {
	return &S3Publisher{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}
}

// NewS3PublisherFromConfig loads AWS configuration and builds a client for
// the bucket named in cfg.
func NewS3PublisherFromConfig(ctx context.Context, cfg config.PublishConfig) (*S3Publisher, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 publisher requires s3_bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Publisher(client, cfg.S3Bucket, cfg.S3Prefix), nil
}

// Put uploads a document. Large documents are sent as multipart uploads.
func (p *S3Publisher) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	counted := &countingReader{r: r}
	_, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(p.key(name)),
		Body:        counted,
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", name, err)
	}
	if counted.n != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, counted.n)
	}
	return nil
}

// Get downloads a document and writes it to w.
func (p *S3Publisher) Get(ctx context.Context, name string, w io.Writer) error {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.key(name)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return fmt.Errorf("document not found: %s", name)
		}
		return fmt.Errorf("downloading %s: %w", name, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	return nil
}

// ValidateSetup checks that the bucket exists and is reachable.
func (p *S3Publisher) ValidateSetup(ctx context.Context) error {
	if _, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(p.bucket)}); err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", p.bucket, err)
	}
	return nil
}

func (p *S3Publisher) key(name string) string {
	if p.prefix == "" {
		return name
	}
	return path.Join(p.prefix, name)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n += int64(n)
	return n, err
}

var _ maat.Publisher = (*S3Publisher)(nil)
