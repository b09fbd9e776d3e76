// Package identity implements the identity federation core for the
// Vanilla Kitchen services: verification of provider-issued ID tokens,
// reconciliation against the local user directory, backend-probe based role
// resolution, the two-system provisioning saga, and the client auth session
// store the rest of the application coordinates on.
//
// The external identity provider is trusted for credential verification
// only. Roles always come from the local directory, surfaced through
// role-scoped backend endpoints; no client-supplied role claim is ever
// honored.
package identity
