// Package api is the remote library collaborator: it lists albums and assets
// over the server's JSON API and streams asset bytes to local paths.
//
// Remote responses are normalized at this boundary into canonical Album and
// Asset records; the syncer never branches on source field names or digest
// encodings.
package api
