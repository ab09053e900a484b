package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	kiloByte = 1024
	megaByte = 1024 * kiloByte
	gigaByte = 1024 * megaByte
)

type Config struct {
	Cursor    cursorConfig    `yaml:"cursor"`
	Cache     cacheConfig     `yaml:"cache"`
	Reference referenceConfig `yaml:"reference"`
	Storage   storageConfig   `yaml:"storage"`
	Exchange  exchangeConfig  `yaml:"exchange"`
	Log       logConfig       `yaml:"log"`
	Secrets   secretsConfig   `yaml:"-"`
}
type cursorConfig struct {
	BatchSize       int `yaml:"batch_size"`       // rows requested from the root operator per pull
	BufferedBatches int `yaml:"buffered_batches"` // output batches a task may hold before its driver blocks
}
type cacheConfig struct {
	EnableAsyncCache bool   `yaml:"enable_async_cache"`
	CapacityBytes    uint64 `yaml:"capacity_bytes"`
}
type referenceConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}
type storageConfig struct {
	Backend string `yaml:"backend"` // local, minio or s3
	Root    string `yaml:"root"`    // directory for the local backend
	Bucket  string `yaml:"bucket"`
	Region  string `yaml:"region"`
	UseSSL  bool   `yaml:"use_ssl"`
}
type exchangeConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	MaxMessageMB int    `yaml:"max_message_mb"`
}
type logConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// never read from yaml, only from the environment
type secretsConfig struct {
	AccessKey   string
	SecretKey   string
	EndpointURL string
	BucketName  string
}

func defaultConfig() *Config {
	return &Config{
		Cursor: cursorConfig{
			BatchSize:       1024,
			BufferedBatches: 4,
		},
		Cache: cacheConfig{
			EnableAsyncCache: true,
			CapacityBytes:    uint64(gigaByte) * 4, // 4GB
		},
		Reference: referenceConfig{
			Driver: "sqlite3",
			DSN:    ":memory:",
		},
		Storage: storageConfig{
			Backend: "local",
			Root:    ".",
			Region:  "us-east-1",
			UseSSL:  true,
		},
		Exchange: exchangeConfig{
			Host:         "localhost",
			Port:         8000,
			MaxMessageMB: 16,
		},
		Log: logConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

var configInstance *Config = defaultConfig()

func GetConfig() *Config {
	return configInstance
}

// Reset restores the defaults. Tests that Decode should call it when done.
func Reset() {
	configInstance = defaultConfig()
}

// MaxMessageBytes is the exchange gRPC message limit in bytes.
func (c *Config) MaxMessageBytes() int {
	return c.Exchange.MaxMessageMB * megaByte
}

// overwrite global instance with loaded config
func Decode(filePath string) error {
	ext := filepath.Ext(filePath)
	if ext != ".yaml" && ext != ".yml" {
		return errors.New("file must be a .yaml or .yml file")
	}
	r, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer r.Close()
	config := make(map[string]interface{})
	if err := yaml.NewDecoder(r).Decode(config); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return mergeConfig(configInstance, config)
}

// LoadSecrets reads object store credentials from the environment. Any .env
// files given are loaded first; variables already set in the environment win.
func LoadSecrets(envFiles ...string) error {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return fmt.Errorf("failed to load env files: %w", err)
		}
	}
	configInstance.Secrets = secretsConfig{
		AccessKey:   os.Getenv("ACCESS_KEY"),
		SecretKey:   os.Getenv("SECRET_KEY"),
		EndpointURL: os.Getenv("ENDPOINT_URL"),
		BucketName:  os.Getenv("BUCKET_NAME"),
	}
	if configInstance.Secrets.BucketName != "" && configInstance.Storage.Bucket == "" {
		configInstance.Storage.Bucket = configInstance.Secrets.BucketName
	}
	return nil
}

func mergeConfig(dst *Config, src map[string]interface{}) error {
	// =============================
	// CURSOR
	// =============================
	if cursor, ok := src["cursor"].(map[string]interface{}); ok {
		if v, ok := cursor["batch_size"].(int); ok {
			if v <= 0 || v > 65535 {
				return fmt.Errorf("cursor.batch_size must be in [1, 65535], got %d", v)
			}
			dst.Cursor.BatchSize = v
		}
		if v, ok := cursor["buffered_batches"].(int); ok {
			if v < 0 {
				return fmt.Errorf("cursor.buffered_batches must be >= 0, got %d", v)
			}
			dst.Cursor.BufferedBatches = v
		}
	}

	// =============================
	// CACHE
	// =============================
	if cache, ok := src["cache"].(map[string]interface{}); ok {
		if v, ok := cache["enable_async_cache"].(bool); ok {
			dst.Cache.EnableAsyncCache = v
		}
		if v, ok := cache["capacity_bytes"].(int); ok {
			if v <= 0 {
				return fmt.Errorf("cache.capacity_bytes must be positive, got %d", v)
			}
			dst.Cache.CapacityBytes = uint64(v)
		}
	}

	// =============================
	// REFERENCE
	// =============================
	if ref, ok := src["reference"].(map[string]interface{}); ok {
		if v, ok := ref["driver"].(string); ok {
			dst.Reference.Driver = v
		}
		if v, ok := ref["dsn"].(string); ok {
			dst.Reference.DSN = v
		}
	}

	// =============================
	// STORAGE
	// =============================
	if storage, ok := src["storage"].(map[string]interface{}); ok {
		if v, ok := storage["backend"].(string); ok {
			switch v {
			case "local", "minio", "s3":
				dst.Storage.Backend = v
			default:
				return fmt.Errorf("unknown storage.backend %q", v)
			}
		}
		if v, ok := storage["root"].(string); ok {
			dst.Storage.Root = v
		}
		if v, ok := storage["bucket"].(string); ok {
			dst.Storage.Bucket = v
		}
		if v, ok := storage["region"].(string); ok {
			dst.Storage.Region = v
		}
		if v, ok := storage["use_ssl"].(bool); ok {
			dst.Storage.UseSSL = v
		}
	}

	// =============================
	// EXCHANGE
	// =============================
	if exchange, ok := src["exchange"].(map[string]interface{}); ok {
		if v, ok := exchange["host"].(string); ok {
			dst.Exchange.Host = v
		}
		if v, ok := exchange["port"].(int); ok {
			dst.Exchange.Port = v
		}
		if v, ok := exchange["max_message_mb"].(int); ok {
			dst.Exchange.MaxMessageMB = v
		}
	}

	// =============================
	// LOG
	// =============================
	if logCfg, ok := src["log"].(map[string]interface{}); ok {
		if v, ok := logCfg["level"].(string); ok {
			dst.Log.Level = v
		}
		if v, ok := logCfg["format"].(string); ok {
			dst.Log.Format = v
		}
	}
	return nil
}
