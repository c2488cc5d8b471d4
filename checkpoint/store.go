package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNotFound is returned by Get (and Backend.Read) when no value exists for the key.
var ErrNotFound = errors.New("checkpoint not found")

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Store is the durability surface a pipeline depends on.
type Store interface {
	// Namespaced returns a view of the store scoped to name. Keys written through
	// the view are invisible to other namespaces.
	Namespaced(name string) Store
	// Put persists value under key, overwriting any previous value.
	Put(ctx context.Context, key string, value any) error
	// Get decodes the most recently put value for key into into.
	// Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string, into any) error
	// Delete removes key. Deleting a missing key returns nil.
	Delete(ctx context.Context, key string) error
}

// Backend stores raw bytes by fully-qualified key. Implementations must be safe
// for concurrent use, must return ErrNotFound from Read for a missing key, and
// must treat Remove of a missing key as success.
type Backend interface {
	Write(ctx context.Context, key string, data []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, key string) error
}

// Option configures a KV store.
type Option func(*KV)

// WithCodec sets the codec used to serialize values. Defaults to Msgpack.
func WithCodec(c Codec) Option {
	return func(s *KV) {
		if c != nil {
			s.codec = c
		}
	}
}

// KV is a Store that serializes values with a Codec and keeps them in a Backend.
// Namespaces are encoded as escaped path segments in front of the key.
type KV struct {
	backend   Backend
	codec     Codec
	namespace []string
}

// New returns a root (un-namespaced) store over backend.
func New(backend Backend, opts ...Option) *KV {
	s := &KV{backend: backend, codec: Msgpack{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Namespaced implements Store.
func (s *KV) Namespaced(name string) Store {
	ns := make([]string, 0, len(s.namespace)+1)
	ns = append(ns, s.namespace...)
	ns = append(ns, name)
	return &KV{backend: s.backend, codec: s.codec, namespace: ns}
}

// Namespace returns the namespace segments of this view (empty for the root).
func (s *KV) Namespace() []string {
	return append([]string(nil), s.namespace...)
}

// Put implements Store.
func (s *KV) Put(ctx context.Context, key string, value any) error {
	data, err := s.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("checkpoint put %q: encode (%s): %w", key, s.codec.Name(), err)
	}
	if err := s.backend.Write(ctx, s.qualify(key), data); err != nil {
		return fmt.Errorf("checkpoint put %q: %w", key, err)
	}
	return nil
}

// Get implements Store.
func (s *KV) Get(ctx context.Context, key string, into any) error {
	data, err := s.backend.Read(ctx, s.qualify(key))
	if err != nil {
		return fmt.Errorf("checkpoint get %q: %w", key, err)
	}
	if err := s.codec.Unmarshal(data, into); err != nil {
		return fmt.Errorf("checkpoint get %q: decode (%s): %w", key, s.codec.Name(), err)
	}
	return nil
}

// Delete implements Store.
func (s *KV) Delete(ctx context.Context, key string) error {
	if err := s.backend.Remove(ctx, s.qualify(key)); err != nil {
		return fmt.Errorf("checkpoint delete %q: %w", key, err)
	}
	return nil
}

// Key returns the backend key that key maps to in this namespace.
func (s *KV) Key(key string) string { return s.qualify(key) }

func (s *KV) qualify(key string) string {
	parts := make([]string, 0, len(s.namespace)+1)
	for _, ns := range s.namespace {
		parts = append(parts, escapeSegment(ns))
	}
	parts = append(parts, escapeSegment(key))
	return strings.Join(parts, "/")
}

// escapeSegment path-escapes seg and also escapes the dot segments, which
// path-based backends would otherwise clean away.
func escapeSegment(seg string) string {
	switch seg {
	case ".":
		return "%2E"
	case "..":
		return "%2E%2E"
	}
	return url.PathEscape(seg)
}

var _ Store = (*KV)(nil)
