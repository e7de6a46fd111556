package storage

import "lekhaslides/internal/ports"

// Provider is the storage contract shared by the API and the worker.
type Provider = ports.StorageProvider

// Provider names accepted in STORAGE_PROVIDER.
const (
	ProviderLocalFS = "localfs"
	ProviderGDrive  = "gdrive"
	ProviderS3      = "s3"
)
