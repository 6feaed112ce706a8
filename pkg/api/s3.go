package api

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/resultoor/pkg/config"
	"github.com/ethpandaops/resultoor/pkg/sources"
)

const defaultPresignExpiry = "15m"

// presignCacheEntry holds a cached presigned URL and its expiration time.
type presignCacheEntry struct {
	url       string
	expiresAt time.Time
}

// headResult carries the object metadata the UI needs for HEAD requests.
type headResult struct {
	ContentType   string
	ContentLength int64
}

// s3Presigner generates presigned GET URLs for result and log files
// stored in S3, so large log downloads bypass the API server.
type s3Presigner struct {
	log            logrus.FieldLogger
	cfg            *config.S3SourceConfig
	client         *s3.Client
	presignClient  *s3.PresignClient
	expiry         time.Duration
	discoveryPaths []string
	cacheTTL       time.Duration
	mu             sync.RWMutex
	cache          map[string]presignCacheEntry
}

// newS3Presigner creates a new S3 presigner from the given configuration.
func newS3Presigner(
	log logrus.FieldLogger,
	cfg *config.S3SourceConfig,
) (*s3Presigner, error) {
	expiryStr := cfg.PresignedURLs.Expiry
	if expiryStr == "" {
		expiryStr = defaultPresignExpiry
	}

	expiry, err := time.ParseDuration(expiryStr)
	if err != nil {
		return nil, fmt.Errorf("parsing presigned_urls.expiry: %w", err)
	}

	client := sources.NewS3Client(cfg)

	// Normalize discovery paths: trim trailing slashes.
	paths := make([]string, 0, len(cfg.DiscoveryPaths))
	for _, p := range cfg.DiscoveryPaths {
		paths = append(paths, strings.TrimRight(p, "/"))
	}

	return &s3Presigner{
		log:            log.WithField("component", "s3-presigner"),
		cfg:            cfg,
		client:         client,
		presignClient:  s3.NewPresignClient(client),
		expiry:         expiry,
		discoveryPaths: paths,
		cacheTTL:       expiry / 2,
		cache:          make(map[string]presignCacheEntry),
	}, nil
}

// GeneratePresignedURL returns a presigned GET URL for the given S3 key.
// Results are cached for half the presigned URL expiry duration to avoid
// redundant presigning while ensuring URLs always have sufficient validity.
func (p *s3Presigner) GeneratePresignedURL(
	ctx context.Context,
	key string,
) (string, error) {
	if !p.isAllowedPath(key) {
		return "", fmt.Errorf(
			"path %q is not within any allowed discovery path", key,
		)
	}

	now := time.Now()

	// Fast path: check cache under read lock.
	p.mu.RLock()
	if entry, ok := p.cache[key]; ok && now.Before(entry.expiresAt) {
		p.mu.RUnlock()

		return entry.url, nil
	}
	p.mu.RUnlock()

	// Slow path: acquire write lock and double-check.
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.cache[key]; ok && now.Before(entry.expiresAt) {
		return entry.url, nil
	}

	result, err := p.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.expiry))
	if err != nil {
		return "", fmt.Errorf("presigning URL for %q: %w", key, err)
	}

	p.cache[key] = presignCacheEntry{
		url:       result.URL,
		expiresAt: now.Add(p.cacheTTL),
	}

	return result.URL, nil
}

// HeadObject retrieves object metadata so the UI can determine file
// sizes without downloading the object.
func (p *s3Presigner) HeadObject(
	ctx context.Context,
	key string,
) (*headResult, error) {
	if !p.isAllowedPath(key) {
		return nil, fmt.Errorf(
			"path %q is not within any allowed discovery path", key,
		)
	}

	out, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("heading object %q: %w", key, err)
	}

	result := &headResult{}

	if out.ContentType != nil {
		result.ContentType = *out.ContentType
	}

	if out.ContentLength != nil {
		result.ContentLength = *out.ContentLength
	}

	return result, nil
}

// isAllowedPath checks that the key is clean and falls under a discovery path.
func (p *s3Presigner) isAllowedPath(key string) bool {
	if key == "" {
		return false
	}

	if strings.Contains(key, "..") {
		return false
	}

	// Clean the path and ensure it didn't change meaning.
	if path.Clean(key) != key {
		return false
	}

	// Must be under at least one discovery path prefix.
	for _, prefix := range p.discoveryPaths {
		if key == prefix || strings.HasPrefix(key, prefix+"/") {
			return true
		}
	}

	return false
}
