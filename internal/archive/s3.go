package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// versionKey is the user metadata entry holding the snapshot version.
const versionKey = "prov-version"

// S3Config configures an S3Archive. Endpoint selects an S3-compatible
// service and switches to path-style addressing. Static credentials are
// used when both keys are set, otherwise the default AWS chain applies.
type S3Config struct {
	Name            string
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Archive stores snapshots as objects named <prefix>/<projectID>.snapshot,
// with the version kept in the object metadata.
type S3Archive struct {
	name       string
	bucket     string
	prefix     string
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
}

// NewS3Archive creates an S3Archive. It does not contact the service.
func NewS3Archive(ctx context.Context, cfg S3Config) (*S3Archive, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Archive{
		name:       cfg.Name,
		bucket:     cfg.Bucket,
		prefix:     cfg.Prefix,
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
	}, nil
}

func (a *S3Archive) Name() string { return a.name }

func (a *S3Archive) key(projectID string) string {
	return path.Join(a.prefix, projectID+".snapshot")
}

func (a *S3Archive) Put(ctx context.Context, projectID string, r io.Reader, size int64, version int64) error {
	counted := &countingReader{r: r}
	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(a.bucket),
		Key:      aws.String(a.key(projectID)),
		Body:     counted,
		Metadata: map[string]string{versionKey: strconv.FormatInt(version, 10)},
	})
	if err != nil {
		return fmt.Errorf("uploading snapshot to s3://%s/%s: %w", a.bucket, a.key(projectID), err)
	}
	if counted.n != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, counted.n)
	}
	return nil
}

func (a *S3Archive) Get(ctx context.Context, projectID string, w io.Writer) error {
	buf := manager.NewWriteAtBuffer(nil)
	_, err := a.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(projectID)),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("project %s: %w", projectID, ErrNoSnapshot)
		}
		return fmt.Errorf("downloading snapshot: %w", err)
	}
	if _, err := io.Copy(w, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

func (a *S3Archive) Version(ctx context.Context, projectID string) (int64, error) {
	out, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(projectID)),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading snapshot metadata: %w", err)
	}
	v, ok := out.Metadata[versionKey]
	if !ok {
		return 0, nil
	}
	version, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version %q: %w", v, err)
	}
	return version, nil
}

// ValidateSetup checks that the bucket exists and is accessible.
func (a *S3Archive) ValidateSetup(ctx context.Context) error {
	if _, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)}); err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", a.bucket, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
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

// Compile-time check
var _ Archive = (*S3Archive)(nil)
