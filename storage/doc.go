// Package storage provides keyed record storage with pluggable backends.
//
// Every backend implements interfaces.StorageBackend: Get and Put of opaque
// values under string keys of the form "<namespace>/<id>". The recovery service
// never talks to a backend directly; it uses RecordStore, which JSON-encodes
// configs and requests, optionally seals them, and writes them under the
// config/ and request/ namespaces.
//
//   - In-memory storage for tests and single-process development
//   - File system storage for local deployments
//   - S3-compatible object storage
//   - HashiCorp Vault KV v2
//   - Redis
//   - BadgerDB embedded key-value store
//
// # Storage URI Format
//
// Storage backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - memory://
//   - file:///var/lib/guardian-recovery/
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/prefix/?region=us-west-2&endpoint=minio:9000
//   - vault://vault.example.com:8200/secret/recovery?token=s.xxx&tls=true
//   - redis://[:password@]localhost:6379/1?prefix=recovery:
//   - badger:///var/lib/guardian-recovery/badger or badger://memory
//
// # Redundancy
//
// MultiStorageBackend writes to every available backend and reads from the
// first backend that has the key, so a wallet's records survive the loss of a
// single backend:
//
//	factory := storage.NewStorageBackendFactory(logger)
//	backend, err := factory.CreateMultiBackend(locations)
//	store := storage.NewRecordStore(backend, kms.NoopSealer{}, logger)
package storage
