// Package main (cmd/recoveryserver) runs the guardian recovery API.
//
// Records are kept in one or more storage backends chosen by --storage URI. When more
// than one URI is given, writes are replicated to every available backend.
//
// With --seal-operators the recovery records are sealed at rest. The server then starts
// sealed: /api/v1/seal/* accepts operator shares and every recovery route answers 503
// until the threshold of operators has submitted. The shares are produced once with:
//
//	recovery-server seal-init --seal-operators=operators.json --seal-threshold=2 --out=shares.json
//
// Example:
//
//	recovery-server --listen-addr=0.0.0.0:8080 \
//	    --storage=badger:///var/lib/recovery \
//	    --storage=s3://bucket/recovery?region=eu-west-1 \
//	    --timelock=24h
package main
