// Package main (cmd/guardian) is the guardian-side CLI.
//
// A guardian generates a secp256k1 key with keygen and hands the address and public key to
// the wallet owner. After the owner sets up guardians, notifications fetches the encrypted
// share, opens it and keeps it in --share-dir. When a recovery is initiated the guardian
// approves it with approve, which signs the approval and submits the share. Once the
// threshold is met and the timelock has elapsed, the requestor finishes the recovery with
// complete.
package main
