// provider.go -- identity provider interface and shared types.
package oauth

import "context"

// Claims holds the normalized identity claims extracted from a verified
// ID token. All fields are verified server-side; never trust
// client-supplied values. Name and Picture are optional -- empty string
// means not provided.
type Claims struct {
	Sub           string // provider-specific stable user ID (e.g. Google "sub")
	Email         string
	EmailVerified bool
	Name          string
	Picture       string // avatar URL
}

// Verifier validates a client-obtained ID token and returns its claims.
// The web app performs the sign-in flow itself and posts the raw ID token
// to the backend, so the server side only verifies -- no code exchange.
type Verifier interface {
	// Name returns the provider identifier stored in the DB.
	Name() string

	// Verify checks the token's signature, issuer, audience, and expiry,
	// and returns the identity claims on success.
	Verify(ctx context.Context, rawIDToken string) (*Claims, error)
}
