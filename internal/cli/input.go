package cli

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/docsnap/pkg/cache"
	"github.com/matzehuels/docsnap/pkg/errors"
	"github.com/matzehuels/docsnap/pkg/mongostore"
	"github.com/matzehuels/docsnap/pkg/transform"
)

// openInput opens path, or stdin for "" and "-".
func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

// readDocuments parses Extended JSON: either one array of documents or
// one document per line, as written by mongoexport.
func readDocuments(r io.Reader) ([]bson.D, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '[' {
		var wrapper struct {
			Docs []bson.D `bson:"docs"`
		}
		wrapped := append(append([]byte(`{"docs":`), data...), '}')
		if err := bson.UnmarshalExtJSON(wrapped, false, &wrapper); err != nil {
			return nil, errors.Wrap(errors.ErrCodeMalformedTag, err, "parse document array")
		}
		return wrapper.Docs, nil
	}

	var docs []bson.D
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var doc bson.D
		if err := bson.UnmarshalExtJSON(text, false, &doc); err != nil {
			return nil, errors.Wrap(errors.ErrCodeMalformedTag, err, "parse line %d", line)
		}
		docs = append(docs, doc)
	}
	return docs, scanner.Err()
}

// parseFilter parses an Extended JSON query. An empty string matches
// everything.
func parseFilter(s string) (bson.D, error) {
	if s == "" {
		return bson.D{}, nil
	}
	var filter bson.D
	if err := bson.UnmarshalExtJSON([]byte(s), false, &filter); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse --filter")
	}
	return filter, nil
}

// mongoSource reads raw documents from the configured collection.
type mongoSource struct {
	cfg   MongoConfig
	cache cache.Cache
	keyer cache.Keyer
	ttl   time.Duration
}

// connect opens a client and returns the configured collection.
func (s *mongoSource) connect(ctx context.Context) (*mongo.Client, *mongo.Collection, error) {
	if s.cfg.Database == "" || s.cfg.Collection == "" {
		return nil, nil, errors.New(errors.ErrCodeInvalidConfig, "mongo.database and mongo.collection must be set to read from MongoDB")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(s.cfg.URI).SetTimeout(s.cfg.Timeout))
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeStorage, err, "connect to %s", s.cfg.URI)
	}
	return client, client.Database(s.cfg.Database).Collection(s.cfg.Collection), nil
}

// fetch returns up to limit raw documents matching filter. Results are
// cached under the query key.
func (s *mongoSource) fetch(ctx context.Context, filter bson.D, limit int64) ([]bson.D, error) {
	logger := loggerFromContext(ctx)
	key := s.keyer.QueryKey(s.cfg.Database+"."+s.cfg.Collection, bson.D{{Key: "f", Value: filter}, {Key: "l", Value: limit}})

	if raw, hit, err := s.cache.Get(ctx, key); err != nil {
		logger.Warn("cache read failed", "err", err)
	} else if hit {
		var cached struct {
			Docs []bson.D `bson:"docs"`
		}
		if err := bson.Unmarshal(raw, &cached); err == nil {
			logger.Debug("using cached documents", "key", key)
			return cached.Docs, nil
		}
	}

	client, coll, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Disconnect(context.Background())

	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(limit)
	}
	var docs []bson.D
	err = cache.RetryWithBackoff(ctx, func() error {
		cur, err := coll.Find(ctx, filter, opts)
		if err != nil {
			if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
				return cache.Retryable(err)
			}
			return err
		}
		docs = docs[:0]
		return cur.All(ctx, &docs)
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "read %s.%s", s.cfg.Database, s.cfg.Collection)
	}

	if raw, err := bson.Marshal(bson.D{{Key: "docs", Value: docs}}); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
			logger.Warn("cache write failed", "err", err)
		}
	}
	return docs, nil
}

// count returns the number of documents matching filter.
func (s *mongoSource) count(ctx context.Context, filter bson.D) (int64, error) {
	client, coll, err := s.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer client.Disconnect(context.Background())
	return mongostore.New(coll, transform.New(nil, loggerFromContext(ctx))).CountDocuments(ctx, filter)
}
