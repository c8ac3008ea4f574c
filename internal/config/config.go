package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPPort    string
	HTTPSPort   string
	Domain      string
	HTTPOnly    bool
	FrontendURI string
	LogLevel    string

	DatabaseURL string
	KeysDir     string

	AdminJWTSecret    string
	AdminPasswordHash string
	AdminTokenTTL     time.Duration

	VAPIDKeys  *VAPIDKeys
	Push       PushConfig
	Cloudinary CloudinaryConfig

	ProductCacheSize int
}

type VAPIDKeys struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// PushConfig tunes the notification fan-out.
type PushConfig struct {
	// DeadStatuses are push service response codes meaning the endpoint is gone for good.
	DeadStatuses []int
	Concurrency  int
	TTL          int
	Urgency      string
	Timeout      time.Duration
	DefaultIcon  string
	DefaultBadge string
	DefaultTag   string
}

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
}

// Enabled reports whether object store credentials are present.
func (c CloudinaryConfig) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

type configFile struct {
	Server struct {
		HTTPPort    string `yaml:"http_port"`
		HTTPSPort   string `yaml:"https_port"`
		Domain      string `yaml:"domain"`
		HTTPOnly    *bool  `yaml:"http_only"`
		FrontendURI string `yaml:"frontend_uri"`
		LogLevel    string `yaml:"log_level"`
	} `yaml:"server"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Push struct {
		DeadStatuses []int  `yaml:"dead_statuses"`
		Concurrency  int    `yaml:"concurrency"`
		TTL          int    `yaml:"ttl"`
		Urgency      string `yaml:"urgency"`
		TimeoutSec   int    `yaml:"timeout_seconds"`
		DefaultIcon  string `yaml:"default_icon"`
		DefaultBadge string `yaml:"default_badge"`
		DefaultTag   string `yaml:"default_tag"`
		VAPIDSubject string `yaml:"vapid_subject"`
	} `yaml:"push"`
	Cloudinary struct {
		CloudName string `yaml:"cloud_name"`
		APIKey    string `yaml:"api_key"`
	} `yaml:"cloudinary"`
	Catalog struct {
		CacheSize int `yaml:"cache_size"`
	} `yaml:"catalog"`
}

// Load builds the configuration from defaults, the optional YAML file at path
// and finally environment variables. Secrets are never read from the file.
func Load(path string) (*Config, error) {
	cfg := &Config{
		HTTPPort:      "8080",
		HTTPSPort:     "8443",
		Domain:        "localhost",
		HTTPOnly:      true,
		LogLevel:      "info",
		DatabaseURL:   "lookbook.db",
		AdminTokenTTL: 12 * time.Hour,
		Push: PushConfig{
			DeadStatuses: []int{404, 410},
			Concurrency:  32,
			TTL:          86400,
			Urgency:      "normal",
			Timeout:      15 * time.Second,
			DefaultIcon:  "/icons/icon-192x192.png",
			DefaultBadge: "/icons/badge-72x72.png",
			DefaultTag:   "lookbook-notification",
		},
		ProductCacheSize: 256,
	}

	vapidSubject := "mailto:admin@lookbook.app"

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		var f configFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		applyFile(cfg, &f)
		if f.Push.VAPIDSubject != "" {
			vapidSubject = f.Push.VAPIDSubject
		}
	}

	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.HTTPSPort = getEnv("HTTPS_PORT", cfg.HTTPSPort)
	cfg.Domain = getEnv("DOMAIN", cfg.Domain)
	cfg.HTTPOnly = getEnvBool("HTTP_ONLY", cfg.HTTPOnly)
	cfg.FrontendURI = getEnv("FRONTEND_URI", cfg.FrontendURI)
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.KeysDir = getEnv("KEYS_DIR", getKeysDirectory())
	cfg.AdminTokenTTL = time.Duration(getEnvInt("ADMIN_TOKEN_TTL_HOURS", int(cfg.AdminTokenTTL.Hours()))) * time.Hour

	cfg.Push.DeadStatuses = getEnvInts("PUSH_DEAD_STATUSES", cfg.Push.DeadStatuses)
	cfg.Push.Concurrency = getEnvInt("PUSH_CONCURRENCY", cfg.Push.Concurrency)
	cfg.Push.TTL = getEnvInt("PUSH_TTL", cfg.Push.TTL)
	cfg.Push.Urgency = getEnv("PUSH_URGENCY", cfg.Push.Urgency)
	cfg.Push.Timeout = time.Duration(getEnvInt("PUSH_TIMEOUT_SECONDS", int(cfg.Push.Timeout.Seconds()))) * time.Second
	cfg.Push.DefaultIcon = getEnv("PUSH_DEFAULT_ICON", cfg.Push.DefaultIcon)
	cfg.Push.DefaultBadge = getEnv("PUSH_DEFAULT_BADGE", cfg.Push.DefaultBadge)
	cfg.Push.DefaultTag = getEnv("PUSH_DEFAULT_TAG", cfg.Push.DefaultTag)

	cfg.Cloudinary.CloudName = getEnv("CLOUDINARY_CLOUD_NAME", cfg.Cloudinary.CloudName)
	cfg.Cloudinary.APIKey = getEnv("CLOUDINARY_API_KEY", cfg.Cloudinary.APIKey)
	cfg.Cloudinary.APISecret = os.Getenv("CLOUDINARY_API_SECRET")

	cfg.ProductCacheSize = getEnvInt("PRODUCT_CACHE_SIZE", cfg.ProductCacheSize)

	if cfg.Push.Concurrency <= 0 {
		return nil, fmt.Errorf("push concurrency must be positive, got %d", cfg.Push.Concurrency)
	}
	if len(cfg.Push.DeadStatuses) == 0 {
		return nil, fmt.Errorf("at least one dead endpoint status is required")
	}

	secret, err := loadOrGenerateSecret(cfg.KeysDir)
	if err != nil {
		return nil, err
	}
	cfg.AdminJWTSecret = secret

	hash, err := loadAdminPasswordHash()
	if err != nil {
		return nil, err
	}
	cfg.AdminPasswordHash = hash

	keys, err := loadVAPIDKeys(cfg.KeysDir, getEnv("VAPID_SUBJECT", vapidSubject))
	if err != nil {
		return nil, err
	}
	cfg.VAPIDKeys = keys

	return cfg, nil
}

func applyFile(cfg *Config, f *configFile) {
	if f.Server.HTTPPort != "" {
		cfg.HTTPPort = f.Server.HTTPPort
	}
	if f.Server.HTTPSPort != "" {
		cfg.HTTPSPort = f.Server.HTTPSPort
	}
	if f.Server.Domain != "" {
		cfg.Domain = f.Server.Domain
	}
	if f.Server.HTTPOnly != nil {
		cfg.HTTPOnly = *f.Server.HTTPOnly
	}
	if f.Server.FrontendURI != "" {
		cfg.FrontendURI = f.Server.FrontendURI
	}
	if f.Server.LogLevel != "" {
		cfg.LogLevel = f.Server.LogLevel
	}
	if f.Database.URL != "" {
		cfg.DatabaseURL = f.Database.URL
	}
	if len(f.Push.DeadStatuses) > 0 {
		cfg.Push.DeadStatuses = f.Push.DeadStatuses
	}
	if f.Push.Concurrency > 0 {
		cfg.Push.Concurrency = f.Push.Concurrency
	}
	if f.Push.TTL > 0 {
		cfg.Push.TTL = f.Push.TTL
	}
	if f.Push.Urgency != "" {
		cfg.Push.Urgency = f.Push.Urgency
	}
	if f.Push.TimeoutSec > 0 {
		cfg.Push.Timeout = time.Duration(f.Push.TimeoutSec) * time.Second
	}
	if f.Push.DefaultIcon != "" {
		cfg.Push.DefaultIcon = f.Push.DefaultIcon
	}
	if f.Push.DefaultBadge != "" {
		cfg.Push.DefaultBadge = f.Push.DefaultBadge
	}
	if f.Push.DefaultTag != "" {
		cfg.Push.DefaultTag = f.Push.DefaultTag
	}
	cfg.Cloudinary.CloudName = f.Cloudinary.CloudName
	cfg.Cloudinary.APIKey = f.Cloudinary.APIKey
	if f.Catalog.CacheSize > 0 {
		cfg.ProductCacheSize = f.Catalog.CacheSize
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return defaultValue
	}
}

// getEnvInts parses a comma separated list of integers. Any malformed entry
// falls back to the default list as a whole.
func getEnvInts(key string, defaultValue []int) []int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	out := make([]int, 0, 4)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return defaultValue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func generateRandomSecret() string {
	bytes := make([]byte, 32)
	rand.Read(bytes)
	return base64.URLEncoding.EncodeToString(bytes)
}

func loadOrGenerateSecret(keysDir string) (string, error) {
	if secret := os.Getenv("ADMIN_JWT_SECRET"); secret != "" {
		return secret, nil
	}

	secretFile := filepath.Join(keysDir, "admin-jwt-secret.key")
	if secretData, err := os.ReadFile(secretFile); err == nil {
		if secret := strings.TrimSpace(string(secretData)); secret != "" {
			return secret, nil
		}
	}

	secret := generateRandomSecret()
	if err := os.MkdirAll(keysDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create keys directory: %w", err)
	}
	if err := os.WriteFile(secretFile, []byte(secret), 0600); err != nil {
		return "", fmt.Errorf("failed to save admin jwt secret: %w", err)
	}
	return secret, nil
}

// loadAdminPasswordHash prefers a precomputed bcrypt hash. A plain password is
// accepted for local setups and hashed once at startup.
func loadAdminPasswordHash() (string, error) {
	if hash := os.Getenv("ADMIN_PASSWORD_HASH"); hash != "" {
		return hash, nil
	}
	plain := os.Getenv("ADMIN_PASSWORD")
	if plain == "" {
		return "", nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash admin password: %w", err)
	}
	return string(hash), nil
}

func loadVAPIDKeys(keysDir, subject string) (*VAPIDKeys, error) {
	publicKey := os.Getenv("VAPID_PUBLIC_KEY")
	privateKey := os.Getenv("VAPID_PRIVATE_KEY")
	if publicKey != "" && privateKey != "" {
		return &VAPIDKeys{PublicKey: publicKey, PrivateKey: privateKey, Subject: subject}, nil
	}

	publicKeyFile := filepath.Join(keysDir, "vapid-public.key")
	privateKeyFile := filepath.Join(keysDir, "vapid-private.key")

	publicKeyData, pubErr := os.ReadFile(publicKeyFile)
	privateKeyData, privErr := os.ReadFile(privateKeyFile)
	if pubErr == nil && privErr == nil {
		privateKey = strings.TrimSpace(string(privateKeyData))
		// webpush-go expects the raw 32 byte scalar, not PKCS#8.
		if decoded, err := base64.RawURLEncoding.DecodeString(privateKey); err == nil && len(decoded) == 32 {
			return &VAPIDKeys{
				PublicKey:  strings.TrimSpace(string(publicKeyData)),
				PrivateKey: privateKey,
				Subject:    subject,
			}, nil
		}
	}

	keys, err := GenerateVAPIDKeys(subject)
	if err != nil {
		return nil, err
	}
	if err := SaveVAPIDKeys(keysDir, keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// GenerateVAPIDKeys creates a fresh P-256 key pair encoded the way browsers
// and webpush-go expect it.
func GenerateVAPIDKeys(subject string) (*VAPIDKeys, error) {
	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return nil, fmt.Errorf("failed to generate VAPID keys: %w", err)
	}
	return &VAPIDKeys{PublicKey: publicKey, PrivateKey: privateKey, Subject: subject}, nil
}

func SaveVAPIDKeys(keysDir string, keys *VAPIDKeys) error {
	if err := os.MkdirAll(keysDir, 0700); err != nil {
		return fmt.Errorf("failed to create keys directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(keysDir, "vapid-public.key"), []byte(keys.PublicKey), 0600); err != nil {
		return fmt.Errorf("failed to save public key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(keysDir, "vapid-private.key"), []byte(keys.PrivateKey), 0600); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}
	return nil
}

func getKeysDirectory() string {
	execPath, err := os.Executable()
	if err != nil {
		return "keys"
	}
	return filepath.Join(filepath.Dir(execPath), "keys")
}
