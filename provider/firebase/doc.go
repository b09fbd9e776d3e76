// Package firebase provides Firebase ID token verification and Identity
// Platform account management for go-identity.
//
// Use TokenVerifier on the backend to accept Firebase-issued ID tokens, and
// Client on the consuming side for account provisioning, sign-in, and the
// auth state stream.
package firebase
