package storage

import (
	"context"
	"testing"

	"lekhaslides/internal/config"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.Config
		provider string
		wantErr  bool
	}{
		{"localfs", config.Config{StorageProvider: "localfs", StorageLocalRoot: t.TempDir()}, ProviderLocalFS, false},
		{"default is localfs", config.Config{StorageLocalRoot: t.TempDir()}, ProviderLocalFS, false},
		{"localfs without root", config.Config{StorageProvider: "localfs"}, "", true},
		{"gdrive without credentials", config.Config{StorageProvider: "gdrive"}, "", true},
		{"s3 without bucket", config.Config{StorageProvider: "s3"}, "", true},
		{"unknown", config.Config{StorageProvider: "ftp"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(context.Background(), tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && p.Provider() != tt.provider {
				t.Errorf("provider = %q, want %q", p.Provider(), tt.provider)
			}
		})
	}
}
