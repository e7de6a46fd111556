// Package storage builds the configured artifact storage provider.
package storage

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"lekhaslides/internal/adapters/storage/gdrive"
	"lekhaslides/internal/adapters/storage/localfs"
	"lekhaslides/internal/adapters/storage/s3"
	"lekhaslides/internal/config"
)

// NewProvider returns the provider named by cfg.StorageProvider.
func NewProvider(ctx context.Context, cfg config.Config) (Provider, error) {
	switch cfg.StorageProvider {
	case "", ProviderLocalFS:
		if cfg.StorageLocalRoot == "" {
			return nil, fmt.Errorf("missing env: STORAGE_LOCAL_ROOT")
		}
		return localfs.New(cfg.StorageLocalRoot), nil

	case ProviderGDrive:
		return newGDriveProvider(ctx, cfg)

	case ProviderS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("missing env: S3_BUCKET")
		}
		return s3.New(ctx, s3.Options{Bucket: cfg.S3Bucket, Region: cfg.S3Region, Endpoint: cfg.S3Endpoint})

	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.StorageProvider)
	}
}

// DriveOAuthConfig is the OAuth client shared by the Drive provider and cmd/gdrive-auth.
func DriveOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}
}

func newGDriveProvider(ctx context.Context, cfg config.Config) (Provider, error) {
	for k, v := range map[string]string{
		"GDRIVE_CLIENT_ID":     cfg.GDriveClientID,
		"GDRIVE_CLIENT_SECRET": cfg.GDriveClientSecret,
		"GDRIVE_REFRESH_TOKEN": cfg.GDriveRefreshToken,
	} {
		if v == "" {
			return nil, fmt.Errorf("missing env: %s", k)
		}
	}

	conf := DriveOAuthConfig(cfg.GDriveClientID, cfg.GDriveClientSecret, "")
	// The token source refreshes on demand and outlives ctx.
	httpClient := conf.Client(context.WithoutCancel(ctx), &oauth2.Token{RefreshToken: cfg.GDriveRefreshToken})

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("gdrive: %w", err)
	}
	return gdrive.NewClient(srv, cfg.GDriveFolderID), nil
}
