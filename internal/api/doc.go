// Package api provides the HTTP REST API and WebSocket feed for upsd.
//
// Reads need no credentials; changing a UPS (SET, INSTCMD, FSD) needs a
// bearer token from POST /api/v1/auth/login and a user whose grants cover
// the request.
//
//	GET  /api/v1/health
//	POST /api/v1/auth/login
//	GET  /api/v1/devices
//	GET  /api/v1/devices/{name}
//	GET  /api/v1/devices/{name}/vars/{var}
//	GET  /api/v1/devices/{name}/events
//	PUT  /api/v1/devices/{name}/vars/{var}      action SET
//	POST /api/v1/devices/{name}/commands/{cmd}  instcmd grant
//	POST /api/v1/devices/{name}/fsd             action FSD
//	GET  /api/v1/ws?device={name}
//	GET  /metrics
//
// The server follows the same lifecycle as other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
