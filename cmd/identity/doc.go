// Package identity is warden's principal and credential boundary.
//
// It owns principal lifecycle status, normalized identifier lookup, and
// credential verification. Authentication flows depend on the narrow
// interfaces declared here (Store, CredentialVerifier) rather than on a
// concrete backend.
package identity
