package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/bhoriuchi/graphql-ws-server/auth"
	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) string {
	t.Helper()
	var k fernet.Key
	require.NoError(t, k.Generate())
	return k.Encode()
}

func TestToken(t *testing.T) {
	assert.Equal(t, "abc", auth.Token(map[string]interface{}{"authToken": "abc"}))
	assert.Equal(t, "abc", auth.Token(map[string]interface{}{"Authorization": "Bearer abc"}))
	assert.Equal(t, "abc", auth.Token(map[string]interface{}{"authorization": "abc"}))
	assert.Equal(t, "", auth.Token(map[string]interface{}{}))
}

func TestFernetAuthorizer(t *testing.T) {
	a, err := auth.NewFernetAuthorizer(time.Minute, newKey(t))
	require.NoError(t, err)

	token, err := a.Issue("user-1")
	require.NoError(t, err)

	ctx, err := a.Authorize(context.Background(), map[string]interface{}{"authToken": token})
	require.NoError(t, err)

	subject, ok := auth.Subject(ctx)
	assert.True(t, ok)
	assert.Equal(t, "user-1", subject)
}

func TestFernetAuthorizerDenies(t *testing.T) {
	a, err := auth.NewFernetAuthorizer(time.Minute, newKey(t))
	require.NoError(t, err)

	other, err := auth.NewFernetAuthorizer(time.Minute, newKey(t))
	require.NoError(t, err)

	foreign, err := other.Issue("user-1")
	require.NoError(t, err)

	_, err = a.Authorize(context.Background(), map[string]interface{}{"authToken": foreign})
	assert.ErrorIs(t, err, auth.ErrAccessDenied)

	_, err = a.Authorize(context.Background(), map[string]interface{}{})
	assert.ErrorIs(t, err, auth.ErrAccessDenied)
}

func TestNewFernetAuthorizerErrors(t *testing.T) {
	_, err := auth.NewFernetAuthorizer(time.Minute)
	assert.Error(t, err)

	_, err = auth.NewFernetAuthorizer(time.Minute, "not a key")
	assert.Error(t, err)
}
