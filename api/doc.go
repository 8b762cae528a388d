/*
Package api defines the JSON wire types of the guardian recovery HTTP API and the
HTTP server configuration.

Byte fields that users handle directly (signatures, public keys, private keys) are
0x-prefixed hex. Sealing shares exchanged with operators are base64, the default
encoding of []byte.

Routes, all under /api/v1:

	POST /keys                                       import a wallet key
	POST /keys/{walletID}/password                   change a wallet key's password
	POST /wallets/{wallet}/guardians                 split the key among guardians
	POST /wallets/{wallet}/guardians/{guardian}/accept
	POST /wallets/{wallet}/guardians/{guardian}/revoke
	POST /wallets/{wallet}/recovery                  initiate
	GET  /wallets/{wallet}/recovery                  status
	POST /wallets/{wallet}/recovery/approve
	POST /wallets/{wallet}/recovery/complete
	POST /wallets/{wallet}/recovery/cancel
	POST /wallets/{wallet}/inheritance
	POST /wallets/{wallet}/inheritance/checkin
	POST /wallets/{wallet}/inheritance/claim
	GET  /guardians/{guardian}/notifications
	GET  /seal/status
	POST /seal/share

The clients subpackage wraps these routes in a typed client.
*/
package api
