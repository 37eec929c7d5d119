package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/partkit-dev/partkit/internal/fsutil"
	"github.com/partkit-dev/partkit/pkg/artifact"
)

// Client is the slice of the Amazon S3 API the backend uses. The
// concrete *s3.Client satisfies it.
type Client interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 generates artifacts by downloading pre-converted files from a
// shared bucket. Objects live under <Prefix>/<part>/, mirroring the
// staging layout the Exec backend produces; the keys' base names are
// kept, so the cache works for any local library prefix.
type S3 struct {
	Client Client
	Bucket string
	Prefix string
}

// NewS3 loads AWS configuration from the environment and returns a
// backend reading the given bucket.
func NewS3(ctx context.Context, bucket, prefix string) (*S3, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3{Client: s3.NewFromConfig(cfg), Bucket: bucket, Prefix: prefix}, nil
}

// Name identifies the backend in logs and metric labels.
func (s *S3) Name() string { return BackendS3 }

// Generate lists every object under the part's key prefix, downloads
// them into req.StagingDir and collects the recognized artifacts. A
// part with no objects at all reports ErrNotCached.
func (s *S3) Generate(ctx context.Context, req Request) (artifact.Set, error) {
	if req.StagingDir == "" {
		return artifact.Set{}, genErr(BackendS3, req.Part, errors.New("staging directory required"))
	}
	keyPrefix := path.Join(s.Prefix, req.Part) + "/"

	paginator := s3.NewListObjectsV2Paginator(s.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(keyPrefix),
	})

	fetched := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return artifact.Set{}, genErr(BackendS3, req.Part, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || strings.HasSuffix(*obj.Key, "/") {
				continue
			}
			if err := s.fetch(ctx, *obj.Key, keyPrefix, req.StagingDir); err != nil {
				return artifact.Set{}, genErr(BackendS3, req.Part, err)
			}
			fetched++
			if req.OnProgress != nil {
				req.OnProgress("fetched " + strings.TrimPrefix(*obj.Key, keyPrefix))
			}
		}
	}
	if fetched == 0 {
		return artifact.Set{}, genErr(BackendS3, req.Part, ErrNotCached)
	}

	set, err := collect(req.StagingDir, req.Lib)
	if err != nil {
		return artifact.Set{}, genErr(BackendS3, req.Part, err)
	}
	if set.Empty() {
		return artifact.Set{}, genErr(BackendS3, req.Part, ErrNoArtifacts)
	}
	return set, nil
}

func (s *S3) fetch(ctx context.Context, key, keyPrefix, staging string) error {
	rel := strings.TrimPrefix(key, keyPrefix)
	if rel == "" || strings.Contains(rel, "..") {
		return fmt.Errorf("unsafe object key %q", key)
	}
	dst := filepath.Join(staging, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), fsutil.DefaultDirPerm); err != nil {
		return err
	}

	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fsutil.DefaultFilePerm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
