package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/matzehuels/docsnap/pkg/errors"
	"github.com/matzehuels/docsnap/pkg/observability"
	"github.com/matzehuels/docsnap/pkg/transform"
)

// Cursor iterates over reconstructed documents.
type Cursor struct {
	cur        *mongo.Cursor
	transform  *transform.Transform
	collection string
	start      time.Time

	value any
	read  int
	err   error
}

// Next advances to the next document. It returns false at the end or on
// the first error; check Err afterwards.
func (c *Cursor) Next(ctx context.Context) bool {
	if c.err != nil || !c.cur.Next(ctx) {
		return false
	}
	var raw bson.D
	if err := c.cur.Decode(&raw); err != nil {
		c.err = errors.Wrap(errors.ErrCodeStorage, err, "decode document from %s", c.collection)
		return false
	}
	v, err := c.transform.Outgoing(raw)
	if err != nil {
		c.err = err
		return false
	}
	c.value = v
	c.read++
	return true
}

// Value returns the current document.
func (c *Cursor) Value() any { return c.value }

// Err returns the first error met while iterating.
func (c *Cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	if err := c.cur.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "iterate %s", c.collection)
	}
	return nil
}

// Close releases the server cursor and reports the read.
func (c *Cursor) Close(ctx context.Context) error {
	observability.Store().OnRead(ctx, c.collection, c.read, time.Since(c.start), c.Err())
	return c.cur.Close(ctx)
}

// All drains the cursor and closes it.
func (c *Cursor) All(ctx context.Context) ([]any, error) {
	defer c.Close(ctx)
	var out []any
	for c.Next(ctx) {
		out = append(out, c.Value())
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
