// Package main (cmd/operator) is the CLI sealing operators use to unseal a recovery server.
//
// Each operator generates a P-256 key pair once with generate-key and registers the public
// key in the server's operators file. After seal-init has produced the shares file, every
// operator runs submit-share after a server restart; the server unseals once the threshold
// is reached.
//
//	operator generate-key --privkey-file=op.key --pubkey-file=op.pub
//	operator submit-share --server-addr=https://recovery:8080 \
//	    --privkey-file=op.key --pubkey-file=op.pub --shares-file=shares.json
package main
