// Package server composes and runs the account process boundary.
//
// It hosts the OAuth authorization endpoints and the session JSON API on one
// HTTP listener backed by a single SQLite store so identity decisions are
// made from one source of truth.
package server
