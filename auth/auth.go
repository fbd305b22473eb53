// Package auth decides whether a connection_init payload may open a
// connection.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fernet/fernet-go"
)

var ErrAccessDenied = errors.New("access denied")

// Authorizer inspects the init payload. A nil error accepts the
// connection and the returned context becomes the connection's identity
// scope for every operation.
type Authorizer interface {
	Authorize(ctx context.Context, payload map[string]interface{}) (context.Context, error)
}

// AuthorizerFunc adapts a function to an Authorizer
type AuthorizerFunc func(ctx context.Context, payload map[string]interface{}) (context.Context, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, payload map[string]interface{}) (context.Context, error) {
	return f(ctx, payload)
}

// AllowAll accepts every connection
var AllowAll = AuthorizerFunc(func(ctx context.Context, payload map[string]interface{}) (context.Context, error) {
	return ctx, nil
})

type subjectKey struct{}

// WithSubject stores the authenticated subject
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// Subject returns the authenticated subject, if any
func Subject(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectKey{}).(string)
	return subject, ok
}

// Token extracts a token from an init payload. It accepts an authToken
// field or an Authorization field holding a bearer token.
func Token(payload map[string]interface{}) string {
	if token, ok := payload["authToken"].(string); ok && token != "" {
		return token
	}

	for _, key := range []string{"Authorization", "authorization"} {
		if value, ok := payload[key].(string); ok {
			value = strings.TrimSpace(value)
			if len(value) > 7 && strings.EqualFold(value[:7], "bearer ") {
				return strings.TrimSpace(value[7:])
			}
			return value
		}
	}

	return ""
}

// FernetAuthorizer accepts connections presenting a fernet token signed
// by one of Keys. The decrypted token is the subject.
type FernetAuthorizer struct {
	Keys []*fernet.Key

	// TTL is the maximum token age, a negative TTL accepts any age
	TTL time.Duration
}

// NewFernetAuthorizer decodes base64 keys, the first key is used to sign
func NewFernetAuthorizer(ttl time.Duration, keys ...string) (*FernetAuthorizer, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("no fernet keys specified")
	}

	decoded, err := fernet.DecodeKeys(keys...)
	if err != nil {
		return nil, fmt.Errorf("failed to decode fernet keys: %w", err)
	}

	return &FernetAuthorizer{Keys: decoded, TTL: ttl}, nil
}

// Issue creates a token for subject signed with the first key
func (a *FernetAuthorizer) Issue(subject string) (string, error) {
	token, err := fernet.EncryptAndSign([]byte(subject), a.Keys[0])
	if err != nil {
		return "", err
	}
	return string(token), nil
}

func (a *FernetAuthorizer) Authorize(ctx context.Context, payload map[string]interface{}) (context.Context, error) {
	token := Token(payload)
	if token == "" {
		return nil, fmt.Errorf("%w: no token in connection payload", ErrAccessDenied)
	}

	subject := fernet.VerifyAndDecrypt([]byte(token), a.TTL, a.Keys)
	if subject == nil {
		return nil, fmt.Errorf("%w: invalid or expired token", ErrAccessDenied)
	}

	return WithSubject(ctx, string(subject)), nil
}
