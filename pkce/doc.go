// Package pkce implements Proof Key for Code Exchange (RFC 7636) challenge
// generation and verification for the S256 method.
//
// A Challenge binds an authorization code exchange to a secret generated by
// the client, preventing authorization-code-interception attacks. Challenges
// are created once per authorization attempt and discarded after the code
// exchange completes.
package pkce
