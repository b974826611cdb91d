package mongostore

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/charmbracelet/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/docsnap/pkg/cache"
	"github.com/matzehuels/docsnap/pkg/document"
	"github.com/matzehuels/docsnap/pkg/errors"
	"github.com/matzehuels/docsnap/pkg/observability"
	"github.com/matzehuels/docsnap/pkg/snapcache"
	"github.com/matzehuels/docsnap/pkg/snapshot"
	"github.com/matzehuels/docsnap/pkg/transform"
)

// Collection is a MongoDB collection of snapshot documents.
type Collection struct {
	coll      *mongo.Collection
	name      string
	transform *transform.Transform
	cache     *snapcache.Store
	logger    *log.Logger
}

// Option configures a Collection.
type Option func(*Collection)

// WithCache reads documents fetched by id through s. Writes whose filter
// names an _id evict that entry.
func WithCache(s *snapcache.Store) Option {
	return func(c *Collection) { c.cache = s }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Collection) { c.logger = l }
}

// New wraps coll.
func New(coll *mongo.Collection, tr *transform.Transform, opts ...Option) *Collection {
	c := &Collection{
		coll:      coll,
		name:      coll.Name(),
		transform: tr,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// InsertOne stores v and returns its _id. Objects embedding
// document.Document get the id assigned back. A missing _id is generated
// before the first attempt so that retries never insert twice.
func (c *Collection) InsertOne(ctx context.Context, v any) (id any, err error) {
	start := time.Now()
	defer func() { observability.Store().OnWrite(ctx, c.name, "insert", time.Since(start), err) }()

	doc, err := c.transform.IncomingDocument(v)
	if err != nil {
		return nil, err
	}
	id, ok := snapshot.Lookup(doc, document.IDKey)
	if !ok || id == nil {
		id = primitive.NewObjectID()
		doc = append(bson.D{{Key: document.IDKey, Value: id}}, withoutID(doc)...)
	}

	err = c.retry(ctx, func() error {
		_, err := c.coll.InsertOne(ctx, doc)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "insert into %s", c.name)
	}
	if ident, ok := v.(document.Identifiable); ok {
		ident.SetDocumentID(id)
	}
	c.logger.Debug("inserted document", "collection", c.name, "id", id)
	return id, nil
}

// FindOne returns the first document matching filter. It fails with
// NOT_FOUND when nothing matches.
func (c *Collection) FindOne(ctx context.Context, filter any) (v any, err error) {
	start := time.Now()
	found := 0
	defer func() { observability.Store().OnRead(ctx, c.name, found, time.Since(start), err) }()

	query, err := c.transform.IncomingQuery(filter)
	if err != nil {
		return nil, err
	}
	var raw bson.D
	err = c.retry(ctx, func() error {
		return c.coll.FindOne(ctx, query).Decode(&raw)
	})
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.New(errors.ErrCodeNotFound, "no document in %s matches the filter", c.name)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "find in %s", c.name)
	}
	found = 1
	return c.transform.Outgoing(raw)
}

// FindByID returns the document with the given _id, consulting the cache
// first when one is configured.
func (c *Collection) FindByID(ctx context.Context, id any) (any, error) {
	if c.cache != nil {
		if v, hit, err := c.cache.GetDocument(ctx, c.name, id); err != nil {
			c.logger.Warn("cache read failed", "collection", c.name, "id", id, "err", err)
		} else if hit {
			return v, nil
		}
	}

	v, err := c.FindOne(ctx, bson.D{{Key: document.IDKey, Value: id}})
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if err := c.cache.PutDocument(ctx, c.name, id, v); err != nil {
			c.logger.Warn("cache write failed", "collection", c.name, "id", id, "err", err)
		}
	}
	return v, nil
}

// Find returns a cursor over every document matching filter.
func (c *Collection) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*Cursor, error) {
	query, err := c.transform.IncomingQuery(filter)
	if err != nil {
		return nil, err
	}
	var cur *mongo.Cursor
	err = c.retry(ctx, func() error {
		var err error
		cur, err = c.coll.Find(ctx, query, opts...)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "find in %s", c.name)
	}
	return &Cursor{cur: cur, transform: c.transform, collection: c.name, start: time.Now()}, nil
}

// UpdateOne applies update to the first document matching filter and
// returns the number of matched documents. Operands of update operators
// are flattened, so "$set" may carry registered objects.
func (c *Collection) UpdateOne(ctx context.Context, filter, update any) (matched int64, err error) {
	start := time.Now()
	defer func() { observability.Store().OnWrite(ctx, c.name, "update", time.Since(start), err) }()

	query, err := c.transform.IncomingQuery(filter)
	if err != nil {
		return 0, err
	}
	ops, err := c.transform.IncomingUpdate(update)
	if err != nil {
		return 0, err
	}
	var res *mongo.UpdateResult
	err = c.retry(ctx, func() error {
		var err error
		res, err = c.coll.UpdateOne(ctx, query, ops)
		return err
	})
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeStorage, err, "update in %s", c.name)
	}
	c.evict(ctx, query)
	return res.MatchedCount, nil
}

// ReplaceOne replaces the first document matching filter with v and
// returns the number of matched documents.
func (c *Collection) ReplaceOne(ctx context.Context, filter, v any) (matched int64, err error) {
	start := time.Now()
	defer func() { observability.Store().OnWrite(ctx, c.name, "replace", time.Since(start), err) }()

	query, err := c.transform.IncomingQuery(filter)
	if err != nil {
		return 0, err
	}
	doc, err := c.transform.IncomingDocument(v)
	if err != nil {
		return 0, err
	}
	var res *mongo.UpdateResult
	err = c.retry(ctx, func() error {
		var err error
		res, err = c.coll.ReplaceOne(ctx, query, doc)
		return err
	})
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeStorage, err, "replace in %s", c.name)
	}
	c.evict(ctx, query)
	return res.MatchedCount, nil
}

// DeleteOne removes the first document matching filter and returns the
// number of deleted documents.
func (c *Collection) DeleteOne(ctx context.Context, filter any) (deleted int64, err error) {
	start := time.Now()
	defer func() { observability.Store().OnWrite(ctx, c.name, "delete", time.Since(start), err) }()

	query, err := c.transform.IncomingQuery(filter)
	if err != nil {
		return 0, err
	}
	var res *mongo.DeleteResult
	err = c.retry(ctx, func() error {
		var err error
		res, err = c.coll.DeleteOne(ctx, query)
		return err
	})
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeStorage, err, "delete from %s", c.name)
	}
	c.evict(ctx, query)
	return res.DeletedCount, nil
}

// CountDocuments counts the documents matching filter.
func (c *Collection) CountDocuments(ctx context.Context, filter any) (int64, error) {
	query, err := c.transform.IncomingQuery(filter)
	if err != nil {
		return 0, err
	}
	var n int64
	err = c.retry(ctx, func() error {
		var err error
		n, err = c.coll.CountDocuments(ctx, query)
		return err
	})
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeStorage, err, "count in %s", c.name)
	}
	return n, nil
}

// retry runs fn with backoff, retrying network errors and timeouts.
func (c *Collection) retry(ctx context.Context, fn func() error) error {
	return cache.RetryWithBackoff(ctx, func() error {
		err := fn()
		if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
			c.logger.Debug("retrying after transient error", "collection", c.name, "err", err)
			return cache.Retryable(err)
		}
		return err
	})
}

// evict drops the cached copy of the document a filter names by _id.
func (c *Collection) evict(ctx context.Context, query bson.D) {
	if c.cache == nil {
		return
	}
	id, ok := snapshot.Lookup(query, document.IDKey)
	if !ok {
		return
	}
	if err := c.cache.Forget(ctx, c.name, id); err != nil {
		c.logger.Warn("cache eviction failed", "collection", c.name, "id", id, "err", err)
	}
}

func withoutID(doc bson.D) bson.D {
	out := make(bson.D, 0, len(doc))
	for _, e := range doc {
		if e.Key != document.IDKey {
			out = append(out, e)
		}
	}
	return out
}
