// Package providers defines the authentication provider abstractions used by
// the authkit middleware and implements the shared OAuth 2.0 authorization
// code + PKCE flow logic that concrete providers compose.
//
// Two levels of contract exist:
//
//   - Authenticator is the minimal interface the enforcement middleware
//     needs: turn inbound credentials into an AuthResult. Non-OAuth
//     providers (API keys, locally issued JWTs) implement only this.
//
//   - OAuthProvider adds the authorization-code flow operations: building
//     authorization URLs, exchanging codes, refreshing tokens, and fetching
//     user info from the provider's identity endpoint.
//
// Concrete OAuth providers (google, github) embed the shared Flow helper
// rather than inheriting from a base type; each contributes only its
// endpoint configuration and user-info normalization.
package providers
