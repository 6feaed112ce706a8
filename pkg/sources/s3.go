package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ethpandaops/resultoor/pkg/config"
	"github.com/ethpandaops/resultoor/pkg/hive"
)

// Compile-time interface check.
var _ Reader = (*s3Reader)(nil)

type s3Reader struct {
	client   *s3.Client
	bucket   string
	prefixes []string
}

// NewS3Reader creates a Reader backed by S3-compatible storage. Each
// configured discovery path is a key prefix within the bucket and
// doubles as the directory name.
func NewS3Reader(cfg *config.S3SourceConfig) Reader {
	prefixes := make([]string, 0, len(cfg.DiscoveryPaths))
	for _, p := range cfg.DiscoveryPaths {
		prefixes = append(prefixes, strings.TrimRight(p, "/"))
	}

	sort.Strings(prefixes)

	return &s3Reader{
		client:   NewS3Client(cfg),
		bucket:   cfg.Bucket,
		prefixes: prefixes,
	}
}

// Directories returns one directory per configured prefix.
func (r *s3Reader) Directories() []Directory {
	dirs := make([]Directory, 0, len(r.prefixes))
	for _, p := range r.prefixes {
		dirs = append(dirs, Directory{Name: p, Address: p})
	}

	return dirs
}

// ListRuns reads {prefix}/listing.jsonl. A missing key yields an
// empty slice.
func (r *s3Reader) ListRuns(
	ctx context.Context, directory string,
) ([]hive.RunRecord, error) {
	data, err := r.GetFile(ctx, directory, listingFile)
	if err != nil {
		return nil, err
	}

	if data == nil {
		return []hive.RunRecord{}, nil
	}

	runs, _ := parseListing(data)

	return runs, nil
}

// GetTestDetail reads {prefix}/results/{fileName}.
func (r *s3Reader) GetTestDetail(
	ctx context.Context, directory, fileName string,
) (*hive.TestDetail, error) {
	data, err := r.GetFile(ctx, directory, "results/"+fileName)
	if err != nil {
		return nil, err
	}

	if data == nil {
		return nil, nil
	}

	return parseTestDetail(data)
}

// GetFile reads {prefix}/{name}. Returns (nil, nil) when the key does
// not exist.
func (r *s3Reader) GetFile(
	ctx context.Context, directory, name string,
) ([]byte, error) {
	if !r.knownPrefix(directory) {
		return nil, fmt.Errorf("unknown directory: %q", directory)
	}

	if !isCleanRelPath(name) {
		return nil, fmt.Errorf("invalid file path: %q", name)
	}

	key := directory + "/" + name

	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting object %q: %w", key, err)
	}

	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object %q: %w", key, err)
	}

	return data, nil
}

func (r *s3Reader) knownPrefix(directory string) bool {
	for _, p := range r.prefixes {
		if p == directory {
			return true
		}
	}

	return false
}

func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	return strings.Contains(err.Error(), "NoSuchKey")
}

// NewS3Client constructs an S3 client from the source config. It is
// shared with the API layer's presigned URL generator.
func NewS3Client(cfg *config.S3SourceConfig) *s3.Client {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	return s3.New(s3.Options{}, opts...)
}
