package apiclient

import "context"

// StaticToken is a TokenProvider that always returns the same opaque
// credential, typically sourced from the environment. Token acquisition and
// refresh live outside this codebase.
type StaticToken string

// Token implements TokenProvider.
func (s StaticToken) Token(ctx context.Context) (string, error) {
	return string(s), nil
}
