package models

import "time"

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Social   SocialConfig
	Chain    ChainConfig
	Jobs     JobsConfig
	FeeSweep FeeSweepConfig
	Images   ImagesConfig
	DemoMode bool
	Platform string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port             string
	PaymentNetwork   string
	PaymentAsset     string
	PaymentPayTo     string
	PaymentMaxAmount string
	FacilitatorUrl   string
}

// SocialConfig holds social identity worker settings
type SocialConfig struct {
	ApiKey         string
	BaseUrl        string
	ScanInterval   time.Duration
	PollInterval   time.Duration
	InitialBackoff time.Duration
	MaxAttempts    int
	RateInterval   time.Duration
}

// ChainConfig holds blockchain client settings
type ChainConfig struct {
	RpcUrl          string
	PrivateKey      string
	RegistryAddress string
	SplitterAddress string
	ChainId         int64
	ReceiptInterval time.Duration
	ReceiptTimeout  time.Duration
}

// JobsConfig holds marketplace job settings
type JobsConfig struct {
	TTL            time.Duration
	FeeBps         int64
	ExpireInterval time.Duration
	MaxLatencyMs   int64
}

// FeeSweepConfig holds fee distribution sweep settings
type FeeSweepConfig struct {
	Interval         time.Duration
	ScoutFundAddress string
	ScanConcurrency  int
}

// ImagesConfig holds profile image generation settings
type ImagesConfig struct {
	ApiKey string
	Model  string
	Size   string
}
