// Package authcore implements the authentication and session core for a
// role-based educational portal: password credentials, JWT access tokens,
// rotating opaque refresh tokens backed by Redis, OAuth identity linking,
// and role-gated authorization.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the [UserDirectory] port, and value types (User, TokenPair, AuthResult).
// Session encoding, token generation, rate limiting, and audit dispatch live
// under internal/ and are never exported. Persistence adapters live under
// store/ and the HTTP surface under httpapi/, both depending on this package
// and never the other way around.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its
//     public API.
//   - Store or log raw refresh tokens. Only SHA-256 hashes ever reach Redis.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
package authcore
