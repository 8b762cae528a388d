// Package interfaces defines the core interfaces and types for the guardian recovery system.
//
// This package provides the contracts between different components of the system
// without including implementation details, so stores, transports and verifiers can
// be swapped without touching the recovery state machine.
//
// # Domain Types
//
//   - SecretShare: one (x, y) point of a Shamir polynomial
//   - GuardianConfig / RecoveryConfig: per-wallet guardian set and inheritance settings
//   - RecoveryRequest: one recovery attempt with approvals and submitted shares
//   - Notification: a queued guardian event
//
// # Collaborator Interfaces
//
//   - KeyMaterialProvider: unlocks and stores wallet private keys
//   - ShareTransport: delivers payloads and events to guardians
//   - SignatureVerifier: checks that an address signed a message
//   - ConfigStore / RequestStore: keyed persistence of configs and requests
//
// # Storage Interfaces
//
//   - StorageBackend: keyed blob storage (memory, file, s3, vault, redis, badger)
//   - StorageBackendFactory: creates storage backends from URI strings
//
// # Error Types
//
//   - ErrContentNotFound: key not present in the storage system
//   - ErrBackendUnavailable: storage backend is not accessible
//   - ErrInvalidLocationURI: storage location URI is malformed
//   - ErrInvalidCredentials: wallet password rejected
//   - ErrWalletExists: wallet ID already holds a key
package interfaces
