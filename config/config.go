// Package config loads the service configuration from an optional YAML file
// with SIGAUTH_* environment overrides.
package config

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvServerHost         = "SIGAUTH_SERVER_HOST"
	EnvServerPort         = "SIGAUTH_SERVER_PORT"
	EnvServerReadTimeout  = "SIGAUTH_SERVER_READ_TIMEOUT"
	EnvServerWriteTimeout = "SIGAUTH_SERVER_WRITE_TIMEOUT"
	EnvStoreDriver        = "SIGAUTH_STORE_DRIVER"
	EnvRedisURL           = "SIGAUTH_REDIS_URL"
	EnvRedisPrefix        = "SIGAUTH_REDIS_PREFIX"
	EnvEventsDriver       = "SIGAUTH_EVENTS_DRIVER"
	EnvAttestationKeyPath = "SIGAUTH_ATTESTATION_KEY_PATH"
	EnvLogLevel           = "SIGAUTH_LOG_LEVEL"
	EnvLogPretty          = "SIGAUTH_LOG_PRETTY"
	EnvMetricsNamespace   = "SIGAUTH_METRICS_NAMESPACE"

	MinPortNumber = 1
	MaxPortNumber = 65535
)

// Store drivers
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Event drivers
const (
	EventsRedisStream = "redisstream"
	EventsGoChannel   = "gochannel"
	EventsNone        = "none"
)

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

type StoreConfig struct {
	Driver      string `yaml:"driver"`
	RedisURL    string `yaml:"redis_url"`
	RedisPrefix string `yaml:"redis_prefix"`
}

type EventsConfig struct {
	Driver string `yaml:"driver"`
}

type AttestationConfig struct {
	// KeyPath points at a PEM encoded P-256 public key, or at the private key
	// of the issuer
	KeyPath string `yaml:"key_path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// Config holds the service runtime configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Store       StoreConfig       `yaml:"store"`
	Events      EventsConfig      `yaml:"events"`
	Attestation AttestationConfig `yaml:"attestation"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         9000,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Driver:      StoreMemory,
			RedisURL:    "redis://localhost:6379/0",
			RedisPrefix: "sigauth:",
		},
		Events:  EventsConfig{Driver: EventsNone},
		Log:     LogConfig{Level: "info"},
		Metrics: MetricsConfig{Namespace: "sigauth"},
	}
}

// Load reads path if it is not empty, applies environment overrides and
// validates the result
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config load: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config unmarshal: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(c *Config) error {
	setString(&c.Server.Host, EnvServerHost)
	setString(&c.Store.Driver, EnvStoreDriver)
	setString(&c.Store.RedisURL, EnvRedisURL)
	setString(&c.Store.RedisPrefix, EnvRedisPrefix)
	setString(&c.Events.Driver, EnvEventsDriver)
	setString(&c.Attestation.KeyPath, EnvAttestationKeyPath)
	setString(&c.Log.Level, EnvLogLevel)
	setString(&c.Metrics.Namespace, EnvMetricsNamespace)

	if v := env(EnvServerPort); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvServerPort, err)
		}
		c.Server.Port = n
	}
	if v := env(EnvServerReadTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvServerReadTimeout, err)
		}
		c.Server.ReadTimeout = d
	}
	if v := env(EnvServerWriteTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvServerWriteTimeout, err)
		}
		c.Server.WriteTimeout = d
	}
	if v := env(EnvLogPretty); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvLogPretty, err)
		}
		c.Log.Pretty = b
	}
	return nil
}

// Validate checks that the configuration is coherent
func (c Config) Validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("invalid %s: must not be empty", EnvServerHost)
	}
	if c.Server.Port < MinPortNumber || c.Server.Port > MaxPortNumber {
		return fmt.Errorf("invalid %s: must be in range %d..%d", EnvServerPort, MinPortNumber, MaxPortNumber)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("invalid %s: must be > 0", EnvServerReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("invalid %s: must be > 0", EnvServerWriteTimeout)
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StoreRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("invalid %s: required for the redis store", EnvRedisURL)
		}
	default:
		return fmt.Errorf("invalid %s: must be %q or %q", EnvStoreDriver, StoreMemory, StoreRedis)
	}

	switch c.Events.Driver {
	case EventsNone, EventsGoChannel:
	case EventsRedisStream:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("invalid %s: required for redis streams", EnvRedisURL)
		}
	default:
		return fmt.Errorf("invalid %s: must be one of %q, %q, %q", EnvEventsDriver, EventsNone, EventsGoChannel, EventsRedisStream)
	}

	if c.Attestation.KeyPath == "" {
		return fmt.Errorf("invalid %s: must not be empty", EnvAttestationKeyPath)
	}
	if c.Metrics.Namespace == "" {
		return fmt.Errorf("invalid %s: must not be empty", EnvMetricsNamespace)
	}
	return nil
}

// LoadAttestationKey loads the P-256 key that verifies caller attestations.
// A private key file yields its public half.
func LoadAttestationKey(path string) (*ecdsa.PublicKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}

	if block.Type == "PUBLIC KEY" {
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("attestation key %q: %w", path, err)
		}
		key, ok := parsed.(*ecdsa.PublicKey)
		if !ok || key.Curve != elliptic.P256() {
			return nil, fmt.Errorf("attestation key %q: must be ECDSA P-256", path)
		}
		return key, nil
	}

	key, err := parsePrivateKey(path, block)
	if err != nil {
		return nil, err
	}
	return &key.PublicKey, nil
}

// LoadIssuerKey loads the P-256 private key that signs caller attestations
func LoadIssuerKey(path string) (*ecdsa.PrivateKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	return parsePrivateKey(path, block)
}

func readPEM(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading attestation key %q: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("attestation key %q: no PEM block found", path)
	}
	return block, nil
}

func parsePrivateKey(path string, block *pem.Block) (*ecdsa.PrivateKey, error) {
	var key *ecdsa.PrivateKey
	switch block.Type {
	case "EC PRIVATE KEY":
		parsed, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("attestation key %q: %w", path, err)
		}
		key = parsed
	case "PRIVATE KEY":
		// PKCS#8 wrapped key
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("attestation key %q: %w", path, err)
		}
		ec, ok := parsed.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("attestation key %q: must be ECDSA P-256", path)
		}
		key = ec
	default:
		return nil, fmt.Errorf("attestation key %q: unsupported PEM type %q", path, block.Type)
	}

	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("attestation key %q: must be ECDSA P-256, got %s", path, key.Curve.Params().Name)
	}
	return key, nil
}

// WritePrivateKey stores key as an "EC PRIVATE KEY" PEM file
func WritePrivateKey(path string, key *ecdsa.PrivateKey) error {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal attestation key: %w", err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	return os.WriteFile(path, data, 0o600)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setString(dst *string, key string) {
	if v := env(key); v != "" {
		*dst = v
	}
}
