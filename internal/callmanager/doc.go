// Package callmanager hands locally discovered calls to at most one external
// call-management client.
//
// The client speaks a hanging-get protocol: each WatchForPeer request is
// answered with the oldest peer not yet delivered. A second client while one
// is attached is closed with CloseUnavailable; a second outstanding
// WatchForPeer on the same connection closes it with CloseBadState.
package callmanager
