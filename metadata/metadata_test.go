package metadata_test

import (
	"context"
	"testing"

	"github.com/bhoriuchi/graphql-ws-server/metadata"
	"github.com/stretchr/testify/assert"
)

func TestReadWrite(t *testing.T) {
	ctx := metadata.New()

	assert.True(t, metadata.Set(ctx, metadata.ConnectionIDKey, "conn-1"))
	assert.True(t, metadata.Set(ctx, "count", 3))
	assert.False(t, metadata.Set(ctx, "", 3))

	assert.Equal(t, "conn-1", metadata.ConnectionID(ctx))
	n, ok := metadata.ReadInt(ctx, "count")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = metadata.ReadBool(ctx, "count")
	assert.False(t, ok)

	assert.True(t, metadata.Delete(ctx, "count"))
	assert.False(t, metadata.Delete(ctx, "count"))
}

func TestChildCopiesParent(t *testing.T) {
	parent := metadata.New()
	metadata.Set(parent, metadata.ConnectionIDKey, "conn-1")

	child := metadata.NewWithContext(parent)
	metadata.Set(child, metadata.SubscriptionIDKey, "sub-1")

	assert.Equal(t, "conn-1", metadata.ConnectionID(child))
	assert.Equal(t, "sub-1", metadata.SubscriptionID(child))
	assert.Empty(t, metadata.SubscriptionID(parent))
}

func TestNoStore(t *testing.T) {
	ctx := context.Background()
	assert.False(t, metadata.Set(ctx, "a", 1))
	_, ok := metadata.Read(ctx, "a")
	assert.False(t, ok)
}
