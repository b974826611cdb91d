// Package snapcache keeps live objects in a byte cache by storing their
// snapshots as BSON.
package snapcache

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/matzehuels/docsnap/pkg/cache"
	"github.com/matzehuels/docsnap/pkg/errors"
	"github.com/matzehuels/docsnap/pkg/transform"
)

// valueKey wraps every snapshot, because a BSON document must be a
// mapping while a snapshot may be any node.
const valueKey = "v"

// Store caches objects in a cache.Cache.
type Store struct {
	cache     cache.Cache
	keyer     cache.Keyer
	transform *transform.Transform
	ttl       time.Duration
	logger    *log.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithKeyer names entries with k instead of cache.NewDefaultKeyer().
func WithKeyer(k cache.Keyer) Option {
	return func(s *Store) { s.keyer = k }
}

// WithTTL sets the expiry of new entries. Zero, the default, never
// expires.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a Store writing to c and converting values with tr.
func New(c cache.Cache, tr *transform.Transform, opts ...Option) *Store {
	s := &Store{
		cache:     c,
		keyer:     cache.NewDefaultKeyer(),
		transform: tr,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Keyer returns the keyer entries are named with.
func (s *Store) Keyer() cache.Keyer { return s.keyer }

// Put stores v under key.
func (s *Store) Put(ctx context.Context, key string, v any) error {
	flat, err := s.transform.Incoming(v)
	if err != nil {
		return err
	}
	raw, err := bson.Marshal(bson.D{{Key: valueKey, Value: flat}})
	if err != nil {
		return errors.Wrap(errors.ErrCodeUnsupportedValue, err, "encode snapshot for %s", key)
	}
	return cache.RetryWithBackoff(ctx, func() error {
		return s.cache.Set(ctx, key, raw, s.ttl)
	})
}

// Get returns the object stored under key. The boolean is false on a
// miss.
func (s *Store) Get(ctx context.Context, key string) (any, bool, error) {
	var raw []byte
	var hit bool
	err := cache.RetryWithBackoff(ctx, func() error {
		var err error
		raw, hit, err = s.cache.Get(ctx, key)
		return err
	})
	if err != nil || !hit {
		return nil, false, err
	}

	var doc bson.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		s.logger.Warn("dropping unreadable snapshot", "key", key, "err", err)
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Warn("removing unreadable snapshot failed", "key", key, "err", err)
		}
		return nil, false, nil
	}
	if len(doc) != 1 || doc[0].Key != valueKey {
		return nil, false, errors.New(errors.ErrCodeMalformedTag, "cache entry %s is not a snapshot envelope", key)
	}
	v, err := s.transform.Outgoing(doc[0].Value)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.cache.Delete(ctx, key)
}

// PutDocument stores v under its document key.
func (s *Store) PutDocument(ctx context.Context, collection string, id any, v any) error {
	return s.Put(ctx, s.keyer.DocumentKey(collection, id), v)
}

// GetDocument returns the object cached under a document key.
func (s *Store) GetDocument(ctx context.Context, collection string, id any) (any, bool, error) {
	return s.Get(ctx, s.keyer.DocumentKey(collection, id))
}

// Forget removes a document key.
func (s *Store) Forget(ctx context.Context, collection string, id any) error {
	return s.Delete(ctx, s.keyer.DocumentKey(collection, id))
}
