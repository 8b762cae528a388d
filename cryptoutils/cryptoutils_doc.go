// Package cryptoutils provides the cryptographic building blocks of the guardian
// recovery system.
//
// # Share Envelopes
//
// Each guardian share is sealed for that guardian with ECIES on secp256k1
// (go-ethereum crypto/ecies): a fresh ephemeral key per encryption, ECDH key
// agreement, concatenation KDF, AES-128-CTR and HMAC-SHA-256. The wallet
// address is bound into the MAC so a payload cannot be replayed for another wallet.
//
//	SealShare(guardianPubkey, wallet, share) -> payload
//	OpenShare(guardianPrivkey, wallet, payload) -> share
//
// # Signatures
//
// Guardians, owners and beneficiaries authorize operations with EIP-191
// personal_sign signatures. PersonalSignVerifier recovers the signer's public key
// and compares the derived address:
//
//	sig := SignMessage(privateKey, message)
//	ok := PersonalSignVerifier{}.Verify(address, message, sig)
//
// # Password Envelopes
//
// EncryptWithPassword / DecryptWithPassword protect wallet keys at rest with an
// Argon2id-derived AES-256-GCM key:
//
//	[salt (16 bytes)][nonce (12 bytes)][ciphertext]
//
// # Wallets
//
// DeriveWallet validates a secp256k1 private key and returns its address.
package cryptoutils
