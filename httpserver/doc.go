/*
Package httpserver serves the guardian recovery API.

Handler translates JSON requests into recovery.Service calls and maps service errors
onto HTTP statuses:

	validation            400
	bad signature/password 401
	unknown wallet         404
	wrong state            409
	timelock, inactivity   425 with Retry-After
	unusable shares        422
	sealed storage         503

SealHandler accepts operator shares that unlock at-rest sealing. While the sealer is
locked every recovery route answers 503 and /readyz reports "sealed".

Server wires both into a chi router with access logging, health and drain endpoints,
optional pprof under /debug and a separate Prometheus listener.
*/
package httpserver
