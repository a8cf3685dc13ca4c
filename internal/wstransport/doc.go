// Package wstransport wraps gorilla/websocket behind the small dialer and
// connection surface the realtime client needs. It appends the client's
// identity (token, user_id, role) as query parameters at dial time and maps
// handshake credential rejections to contracts.AuthError.
package wstransport
