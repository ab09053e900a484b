package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// TestGetConfig tests the singleton pattern
func TestGetConfig(t *testing.T) {
	Reset()
	defer Reset()

	config1 := GetConfig()
	config2 := GetConfig()
	if config1 != config2 {
		t.Error("GetConfig should return the same singleton instance")
	}
	if config1.Cursor.BatchSize != 1024 {
		t.Errorf("Expected default batch size 1024, got %d", config1.Cursor.BatchSize)
	}
	if config1.Cache.CapacityBytes != 4<<30 {
		t.Errorf("Expected default cache capacity 4GB, got %d", config1.Cache.CapacityBytes)
	}
	if config1.Reference.Driver != "sqlite3" {
		t.Errorf("Expected default reference driver sqlite3, got %s", config1.Reference.Driver)
	}
}

// TestDecodeInvalidExtension tests file extension validation
func TestDecodeInvalidExtension(t *testing.T) {
	Reset()
	defer Reset()

	tests := []struct {
		name     string
		filename string
	}{
		{"JSON extension", "config.json"},
		{"TXT extension", "config.txt"},
		{"No extension", "config"},
		{"Wrong extension", "config.xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Decode(tt.filename)
			if err == nil {
				t.Fatalf("Expected error for %s, got nil", tt.filename)
			}
			expectedMsg := "file must be a .yaml or .yml file"
			if err.Error() != expectedMsg {
				t.Errorf("Expected error '%s', got '%s'", expectedMsg, err.Error())
			}
		})
	}
}

func TestDecodeMissingFile(t *testing.T) {
	Reset()
	defer Reset()

	if err := Decode("nonexistent.yaml"); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func TestDecodeInvalidYAML(t *testing.T) {
	Reset()
	defer Reset()

	path := writeConfig(t, "invalid.yaml", "cursor: [batch_size: 3\n  - : :")
	if err := Decode(path); err == nil {
		t.Error("Expected error for invalid YAML, got nil")
	}
}

// TestDecodePartialOverride keeps defaults for fields the file does not name
func TestDecodePartialOverride(t *testing.T) {
	Reset()
	defer Reset()

	path := writeConfig(t, "partial.yml", `
cursor:
  batch_size: 16
cache:
  enable_async_cache: false
log:
  level: debug
`)
	if err := Decode(path); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	config := GetConfig()
	if config.Cursor.BatchSize != 16 {
		t.Errorf("Expected batch size 16, got %d", config.Cursor.BatchSize)
	}
	if config.Cursor.BufferedBatches != 4 {
		t.Errorf("Expected buffered batches to keep default 4, got %d", config.Cursor.BufferedBatches)
	}
	if config.Cache.EnableAsyncCache {
		t.Error("Expected async cache to be disabled")
	}
	if config.Cache.CapacityBytes != 4<<30 {
		t.Errorf("Expected capacity to keep default, got %d", config.Cache.CapacityBytes)
	}
	if config.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", config.Log.Level)
	}
}

func TestDecodeFullOverride(t *testing.T) {
	Reset()
	defer Reset()

	path := writeConfig(t, "full.yaml", `
cursor:
  batch_size: 2
  buffered_batches: 0
cache:
  enable_async_cache: true
  capacity_bytes: 1048576
reference:
  driver: sqlite3
  dsn: "file:ref?mode=memory"
storage:
  backend: minio
  root: /data
  bucket: splits
  region: eu-west-1
  use_ssl: false
exchange:
  host: 0.0.0.0
  port: 9001
  max_message_mb: 4
log:
  level: warn
  format: json
`)
	if err := Decode(path); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	c := GetConfig()
	if c.Cursor.BatchSize != 2 || c.Cursor.BufferedBatches != 0 {
		t.Errorf("cursor section not applied: %+v", c.Cursor)
	}
	if c.Cache.CapacityBytes != 1048576 {
		t.Errorf("Expected capacity 1048576, got %d", c.Cache.CapacityBytes)
	}
	if c.Reference.DSN != "file:ref?mode=memory" {
		t.Errorf("Expected dsn override, got %s", c.Reference.DSN)
	}
	if c.Storage.Backend != "minio" || c.Storage.Bucket != "splits" || c.Storage.UseSSL {
		t.Errorf("storage section not applied: %+v", c.Storage)
	}
	if c.Exchange.Port != 9001 || c.MaxMessageBytes() != 4*1024*1024 {
		t.Errorf("exchange section not applied: %+v", c.Exchange)
	}
	if c.Log.Format != "json" {
		t.Errorf("Expected json log format, got %s", c.Log.Format)
	}
}

func TestDecodeRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero batch size", "cursor:\n  batch_size: 0\n"},
		{"batch size overflow", "cursor:\n  batch_size: 70000\n"},
		{"negative buffer", "cursor:\n  buffered_batches: -1\n"},
		{"zero capacity", "cache:\n  capacity_bytes: 0\n"},
		{"unknown backend", "storage:\n  backend: ftp\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Reset()
			defer Reset()
			if err := Decode(writeConfig(t, "bad.yaml", tt.content)); err == nil {
				t.Errorf("Expected error for %s", tt.name)
			}
		})
	}
}

func TestLoadSecretsFromEnvFile(t *testing.T) {
	Reset()
	defer Reset()
	for _, k := range []string{"ACCESS_KEY", "SECRET_KEY", "ENDPOINT_URL", "BUCKET_NAME"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	path := writeConfig(t, ".env", "ACCESS_KEY=ak\nSECRET_KEY=sk\nENDPOINT_URL=localhost:9000\nBUCKET_NAME=splits\n")
	if err := LoadSecrets(path); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	s := GetConfig().Secrets
	if s.AccessKey != "ak" || s.SecretKey != "sk" || s.EndpointURL != "localhost:9000" {
		t.Errorf("secrets not loaded: %+v", s)
	}
	if GetConfig().Storage.Bucket != "splits" {
		t.Errorf("Expected bucket to default from BUCKET_NAME, got %q", GetConfig().Storage.Bucket)
	}
}
