package sources

import (
	"fmt"
	"time"

	"github.com/ethpandaops/resultoor/pkg/config"
)

// New builds the configured reader backend and wraps it with TTL
// caching. Exactly one backend must be enabled; config validation
// enforces that before this runs.
func New(cfg *config.SourcesConfig) (Reader, error) {
	var inner Reader

	switch {
	case cfg.Local != nil && cfg.Local.Enabled:
		inner = NewLocalReader(cfg.Local)
	case cfg.HTTP != nil && cfg.HTTP.Enabled:
		inner = NewHTTPReader(cfg.HTTP)
	case cfg.S3 != nil && cfg.S3.Enabled:
		inner = NewS3Reader(cfg.S3)
	default:
		return nil, fmt.Errorf("no source backend enabled")
	}

	listingTTL, err := parseTTL(cfg.Cache.ListingTTL, config.DefaultListingTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid listing_ttl: %w", err)
	}

	detailTTL, err := parseTTL(cfg.Cache.DetailTTL, config.DefaultDetailTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid detail_ttl: %w", err)
	}

	return NewCachingReader(inner, listingTTL, detailTTL), nil
}

func parseTTL(value, fallback string) (time.Duration, error) {
	if value == "" {
		value = fallback
	}

	return time.ParseDuration(value)
}
