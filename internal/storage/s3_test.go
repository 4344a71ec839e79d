package storage

import "testing"

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		want     string
	}{
		{"bare host", "minio:9000", "minio:9000"},
		{"https prefix", "https://account.r2.cloudflarestorage.com", "account.r2.cloudflarestorage.com"},
		{"http prefix", "http://localhost:9000", "localhost:9000"},
		{"trailing slash", "s3.amazonaws.com/", "s3.amazonaws.com"},
		{"path stripped", "https://minio:9000/bucket/prefix", "minio:9000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeEndpoint(tt.endpoint); got != tt.want {
				t.Errorf("normalizeEndpoint(%q) = %q, want %q", tt.endpoint, got, tt.want)
			}
		})
	}
}

func TestDetectStorageType(t *testing.T) {
	tests := []struct {
		endpoint string
		want     StorageType
	}{
		{"account.r2.cloudflarestorage.com", StorageTypeR2},
		{"s3.amazonaws.com", StorageTypeS3},
		{"minio:9000", StorageTypeS3Compatible},
	}

	for _, tt := range tests {
		if got := detectStorageType(tt.endpoint); got != tt.want {
			t.Errorf("detectStorageType(%q) = %q, want %q", tt.endpoint, got, tt.want)
		}
	}
}
