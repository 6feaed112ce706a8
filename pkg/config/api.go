package config

// Cache and GitHub defaults. Listings change as new runs land, so
// their TTL is short; detail files are immutable once written.
const (
	DefaultListingTTL = "30s"
	DefaultDetailTTL  = "15m"

	DefaultGitHubBaseURL  = "https://api.github.com"
	DefaultGitHubCacheTTL = "60s"
)

// APIConfig contains all API server configuration.
type APIConfig struct {
	Server   APIServerConfig   `yaml:"server" mapstructure:"server"`
	Auth     APIAuthConfig     `yaml:"auth,omitempty" mapstructure:"auth"`
	Database APIDatabaseConfig `yaml:"database,omitempty" mapstructure:"database"`
	Sources  SourcesConfig     `yaml:"sources" mapstructure:"sources"`
	Indexing *IndexingConfig   `yaml:"indexing,omitempty" mapstructure:"indexing"`
	GitHub   GitHubConfig      `yaml:"github,omitempty" mapstructure:"github"`
}

// APIServerConfig contains HTTP server settings.
type APIServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Auth    RateLimitTier `yaml:"auth,omitempty" mapstructure:"auth"`
	Public  RateLimitTier `yaml:"public,omitempty" mapstructure:"public"`
}

// RateLimitTier defines request limits for a specific tier.
type RateLimitTier struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// APIAuthConfig contains authentication settings. When basic auth is
// disabled the whole API is anonymous and read-only.
type APIAuthConfig struct {
	SessionTTL    string          `yaml:"session_ttl" mapstructure:"session_ttl"`
	AnonymousRead bool            `yaml:"anonymous_read" mapstructure:"anonymous_read"`
	Basic         BasicAuthConfig `yaml:"basic,omitempty" mapstructure:"basic"`
}

// BasicAuthConfig configures username/password authentication.
type BasicAuthConfig struct {
	Enabled bool            `yaml:"enabled" mapstructure:"enabled"`
	Users   []BasicAuthUser `yaml:"users,omitempty" mapstructure:"users"`
}

// BasicAuthUser defines a basic auth user from config.
type BasicAuthUser struct {
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Role     string `yaml:"role" mapstructure:"role"`
}

// SourcesConfig selects and configures the result source backend.
// Exactly one backend may be enabled at a time.
type SourcesConfig struct {
	Local *LocalSourceConfig `yaml:"local,omitempty" mapstructure:"local"`
	HTTP  *HTTPSourceConfig  `yaml:"http,omitempty" mapstructure:"http"`
	S3    *S3SourceConfig    `yaml:"s3,omitempty" mapstructure:"s3"`
	Cache CacheConfig        `yaml:"cache,omitempty" mapstructure:"cache"`
}

// LocalSourceConfig reads result directories from the local
// filesystem. Discovery paths map a directory name to an absolute
// path containing listing.jsonl plus result and log files.
type LocalSourceConfig struct {
	Enabled        bool              `yaml:"enabled" mapstructure:"enabled"`
	DiscoveryPaths map[string]string `yaml:"discovery_paths,omitempty" mapstructure:"discovery_paths"`
}

// HTTPSourceConfig reads result directories from static JSON
// endpoints. Discovery paths map a directory name to a base URL.
type HTTPSourceConfig struct {
	Enabled        bool              `yaml:"enabled" mapstructure:"enabled"`
	DiscoveryPaths map[string]string `yaml:"discovery_paths,omitempty" mapstructure:"discovery_paths"`
}

// S3SourceConfig reads result directories from S3-compatible storage.
// Discovery paths are key prefixes within the bucket.
type S3SourceConfig struct {
	Enabled         bool                 `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string               `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string               `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string               `yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string               `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string               `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool                 `yaml:"force_path_style" mapstructure:"force_path_style"`
	PresignedURLs   S3PresignedURLConfig `yaml:"presigned_urls,omitempty" mapstructure:"presigned_urls"`
	DiscoveryPaths  []string             `yaml:"discovery_paths,omitempty" mapstructure:"discovery_paths"`
}

// S3PresignedURLConfig contains presigned URL generation settings for
// serving log files directly from the bucket.
type S3PresignedURLConfig struct {
	Expiry string `yaml:"expiry,omitempty" mapstructure:"expiry"`
}

// CacheConfig sets the staleness windows of the source cache.
type CacheConfig struct {
	ListingTTL string `yaml:"listing_ttl,omitempty" mapstructure:"listing_ttl"`
	DetailTTL  string `yaml:"detail_ttl,omitempty" mapstructure:"detail_ttl"`
}

// IndexingConfig configures the background indexing service that
// scans the sources and maintains a queryable index in a database.
type IndexingConfig struct {
	Enabled     bool              `yaml:"enabled" mapstructure:"enabled"`
	Interval    string            `yaml:"interval,omitempty" mapstructure:"interval"`
	Concurrency int               `yaml:"concurrency,omitempty" mapstructure:"concurrency"`
	Database    APIDatabaseConfig `yaml:"database" mapstructure:"database"`
}

// GitHubConfig configures the workflow-status client. The token here
// is a fallback; a token persisted through the settings API takes
// precedence.
type GitHubConfig struct {
	BaseURL           string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Token             string `yaml:"token,omitempty" mapstructure:"token"`
	CacheTTL          string `yaml:"cache_ttl,omitempty" mapstructure:"cache_ttl"`
	RequestsPerMinute int    `yaml:"requests_per_minute,omitempty" mapstructure:"requests_per_minute"`
}

// APIDatabaseConfig contains database connection settings.
type APIDatabaseConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}
