// Package metadata attaches a mutable key/value store to a context. The
// session puts connection details here so resolvers can reach them.
package metadata

import (
	"context"
	"sync"
)

type metadataKey struct{}

// MetadataKey is the context key holding the store
var MetadataKey interface{} = metadataKey{}

const (
	ConnectionIDKey   = "connectionId"
	SubprotocolKey    = "subprotocol"
	SubscriptionIDKey = "subscriptionId"
)

type store struct {
	mx     sync.RWMutex
	values map[string]interface{}
}

// New creates a new metadata context
func New() context.Context {
	return NewWithContext(context.Background())
}

// NewWithContext creates a new metadata context from an existing one.
// Values already present in ctx are copied so the new store can be
// modified without affecting the parent.
func NewWithContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	s := &store{values: map[string]interface{}{}}
	if parent := getMetadata(ctx); parent != nil {
		parent.mx.RLock()
		for k, v := range parent.values {
			s.values[k] = v
		}
		parent.mx.RUnlock()
	}

	return context.WithValue(ctx, MetadataKey, s)
}

// getMetadata fetches the metadata store from the context
func getMetadata(ctx context.Context) *store {
	if ctx == nil {
		return nil
	}

	s, ok := ctx.Value(MetadataKey).(*store)
	if !ok {
		return nil
	}

	return s
}

// Set sets the value in the metadata
func Set(ctx context.Context, key string, value interface{}) bool {
	if key == "" {
		return false
	}

	s := getMetadata(ctx)
	if s == nil {
		return false
	}

	s.mx.Lock()
	s.values[key] = value
	s.mx.Unlock()
	return true
}

// Delete deletes the metadata
func Delete(ctx context.Context, key string) bool {
	if key == "" {
		return false
	}

	s := getMetadata(ctx)
	if s == nil {
		return false
	}

	s.mx.Lock()
	defer s.mx.Unlock()

	if _, ok := s.values[key]; !ok {
		return false
	}

	delete(s.values, key)
	return true
}

// Read reads a value from the metadata
func Read(ctx context.Context, key string) (interface{}, bool) {
	if key == "" {
		return nil, false
	}

	s := getMetadata(ctx)
	if s == nil {
		return nil, false
	}

	s.mx.RLock()
	defer s.mx.RUnlock()

	val, ok := s.values[key]
	return val, ok
}

// ReadString reads a string from the metadata
func ReadString(ctx context.Context, key string) (string, bool) {
	value, ok := Read(ctx, key)
	if !ok {
		return "", false
	}

	v, ok := value.(string)
	return v, ok
}

// ReadBool reads a boolean from the metadata
func ReadBool(ctx context.Context, key string) (bool, bool) {
	value, ok := Read(ctx, key)
	if !ok {
		return false, false
	}

	v, ok := value.(bool)
	return v, ok
}

// ReadInt reads an int from the metadata
func ReadInt(ctx context.Context, key string) (int, bool) {
	value, ok := Read(ctx, key)
	if !ok {
		return 0, false
	}

	v, ok := value.(int)
	return v, ok
}

// ConnectionID returns the id of the connection an operation runs on
func ConnectionID(ctx context.Context) string {
	id, _ := ReadString(ctx, ConnectionIDKey)
	return id
}

// SubscriptionID returns the client supplied operation id
func SubscriptionID(ctx context.Context) string {
	id, _ := ReadString(ctx, SubscriptionIDKey)
	return id
}
