/*
Package clients provides a typed HTTP client for the guardian recovery API.

RecoveryClient covers every route of the server. It only transports requests:
signatures are produced by the caller, usually with cryptoutils.SignMessage over
the matching message builder of the recovery package.

	client := clients.NewRecoveryClient("http://localhost:8080")
	share, _ := cryptoutils.OpenShare(guardianKey, wallet, notification.Payload)
	sig, _ := cryptoutils.SignMessage(guardianKey, recovery.ApprovalMessage(wallet, requestID, share))
	res, err := client.ApproveRecovery(ctx, wallet, guardian, share, sig)

Non-2xx replies are returned as *APIError carrying the status code and, for 425
replies, the Retry-After delay.
*/
package clients
