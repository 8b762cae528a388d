package storage

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ruteri/guardian-recovery/interfaces"
)

// StorageBackendFactory creates storage backends from location URIs and manages
// multi-backend configurations for redundant storage.
type StorageBackendFactory struct {
	log *slog.Logger
}

// NewStorageBackendFactory creates a new factory instance that can create storage backends.
func NewStorageBackendFactory(logger *slog.Logger) *StorageBackendFactory {
	return &StorageBackendFactory{
		log: logger,
	}
}

// StorageBackendFor creates a storage backend from a location URI.
//
// Supported schemes:
//   - memory:// - Process-local map
//   - file:// - Local filesystem storage
//   - s3:// - Amazon S3 or compatible object storage
//   - vault:// - HashiCorp Vault KV v2
//   - redis:// - Redis strings
//   - badger:// - Embedded BadgerDB
func (sf *StorageBackendFactory) StorageBackendFor(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating storage backend", slog.String("scheme", location.Scheme))

	switch location.Scheme {
	case "memory":
		return NewMemoryBackend(), nil
	case "file":
		return sf.createFileBackend(location)
	case "s3":
		return sf.createS3Backend(location)
	case "vault":
		return sf.createVaultBackend(location)
	case "redis":
		return sf.createRedisBackend(location)
	case "badger":
		return sf.createBadgerBackend(location)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme: %s", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// CreateMultiBackend creates a multi-storage backend from a list of locations.
// Locations that fail to initialize are logged and skipped.
// Returns an error if no valid backends could be created.
func (sf *StorageBackendFactory) CreateMultiBackend(locations []interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	backends := make([]interfaces.StorageBackend, 0, len(locations))

	for _, location := range locations {
		backend, err := sf.StorageBackendFor(location)
		if err != nil {
			sf.log.Warn("Failed to create storage backend",
				"err", err,
				slog.String("scheme", location.Scheme),
				slog.String("host", location.Host))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid storage backends created")
	}
	if len(backends) == 1 {
		return backends[0], nil
	}

	return NewMultiStorageBackend(backends, sf.log), nil
}

// createFileBackend handles file:///absolute/path/ and file://./relative/path/
func (sf *StorageBackendFactory) createFileBackend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	path := location.Path
	if location.Host != "" {
		path = location.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI", interfaces.ErrInvalidLocationURI)
	}

	return NewFileBackend(path, sf.log)
}

// createS3Backend handles s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/path/?region=us-west-2&endpoint=custom.s3.com
func (sf *StorageBackendFactory) createS3Backend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	if location.Host == "" {
		return nil, fmt.Errorf("%w: missing bucket in s3 URI", interfaces.ErrInvalidLocationURI)
	}

	region := location.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}

	accessKey, secretKey := splitAuth(location.Auth)

	return NewS3Backend(location.Host, strings.TrimPrefix(location.Path, "/"), region, location.GetParam("endpoint"), accessKey, secretKey, sf.log)
}

// createVaultBackend handles vault://host:port/mount/path?token=...&tls=true
func (sf *StorageBackendFactory) createVaultBackend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	if location.Host == "" {
		return nil, fmt.Errorf("%w: missing host in vault URI", interfaces.ErrInvalidLocationURI)
	}

	parts := strings.SplitN(strings.Trim(location.Path, "/"), "/", 2)
	mountPath := parts[0]
	if mountPath == "" {
		mountPath = "secret"
	}
	var dataPath string
	if len(parts) == 2 {
		dataPath = parts[1]
	}

	scheme := "http"
	if location.GetParamBool("tls") {
		scheme = "https"
	}

	return NewVaultBackend(scheme+"://"+location.Host, mountPath, dataPath, location.GetParam("token"), sf.log)
}

// createRedisBackend handles redis://[:password@]host:port/db?prefix=recovery:
func (sf *StorageBackendFactory) createRedisBackend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	db := 0
	if dbStr := strings.Trim(location.Path, "/"); dbStr != "" {
		var err error
		db, err = strconv.Atoi(dbStr)
		if err != nil || db < 0 {
			return nil, fmt.Errorf("%w: invalid redis db %q", interfaces.ErrInvalidLocationURI, dbStr)
		}
	}

	_, password := splitAuth(location.Auth)

	return NewRedisBackend(location.Host, password, db, location.GetParam("prefix"), sf.log)
}

// createBadgerBackend handles badger:///var/lib/badger and badger://memory
func (sf *StorageBackendFactory) createBadgerBackend(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	if location.Host == "memory" {
		return NewBadgerBackend("", false, sf.log)
	}

	path := location.Path
	if location.Host != "" {
		path = location.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in badger URI", interfaces.ErrInvalidLocationURI)
	}

	return NewBadgerBackend(path, location.GetParamBool("sync"), sf.log)
}

// splitAuth splits url userinfo "user:pass" into its parts.
func splitAuth(auth string) (string, string) {
	if auth == "" {
		return "", ""
	}
	user, pass, _ := strings.Cut(auth, ":")
	return user, pass
}
