package mongostore

import (
	"context"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/matzehuels/docsnap/pkg/cache"
	"github.com/matzehuels/docsnap/pkg/document"
	"github.com/matzehuels/docsnap/pkg/errors"
	"github.com/matzehuels/docsnap/pkg/registry"
	"github.com/matzehuels/docsnap/pkg/snapcache"
	"github.com/matzehuels/docsnap/pkg/transform"
)

type invoice struct {
	document.Document `bson:",inline"`
	Number            string `bson:"number"`
	Total             int    `bson:"total"`
}

func (i *invoice) Snapshot() (any, error) {
	s, err := document.Snapshot(i)
	return s, err
}
func (i *invoice) Restore(state any) error { return document.Restore(i, state) }

func newTransform() *transform.Transform {
	reg := registry.New()
	reg.MustRegister("billing.Invoice", (*invoice)(nil))
	return transform.New(reg, nil)
}

func namespace(mt *mtest.T) string {
	return mt.Coll.Database().Name() + "." + mt.Coll.Name()
}

func storedInvoice(id primitive.ObjectID, number string, total int32) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "number", Value: number},
		{Key: "total", Value: total},
		{Key: "_type", Value: "billing.Invoice"},
	}
}

func TestCollection(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("insert assigns id", func(mt *mtest.T) {
		c := New(mt.Coll, newTransform())
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		inv := &invoice{Number: "A-1", Total: 10}
		id, err := c.InsertOne(ctx, inv)
		if err != nil {
			mt.Fatalf("InsertOne() error: %v", err)
		}
		if _, ok := id.(primitive.ObjectID); !ok {
			mt.Errorf("InsertOne() id = %T, want primitive.ObjectID", id)
		}
		if inv.ID != id {
			mt.Errorf("inv.ID = %v, want %v", inv.ID, id)
		}
	})

	mt.Run("insert keeps explicit id", func(mt *mtest.T) {
		c := New(mt.Coll, newTransform())
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		inv := &invoice{Document: document.Document{ID: "inv-7"}, Number: "A-7"}
		id, err := c.InsertOne(ctx, inv)
		if err != nil {
			mt.Fatalf("InsertOne() error: %v", err)
		}
		if id != "inv-7" {
			mt.Errorf("InsertOne() id = %v, want inv-7", id)
		}
	})

	mt.Run("insert duplicate key", func(mt *mtest.T) {
		c := New(mt.Coll, newTransform())
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}))

		_, err := c.InsertOne(ctx, &invoice{Number: "A-1"})
		if !errors.Is(err, errors.ErrCodeStorage) {
			mt.Errorf("InsertOne() error = %v, want %s", err, errors.ErrCodeStorage)
		}
	})

	mt.Run("insert unsupported value", func(mt *mtest.T) {
		c := New(mt.Coll, newTransform())
		_, err := c.InsertOne(ctx, map[int]string{1: "x"})
		if !errors.Is(err, errors.ErrCodeNonStringKey) {
			mt.Errorf("InsertOne() error = %v, want %s", err, errors.ErrCodeNonStringKey)
		}
	})

	mt.Run("find one", func(mt *mtest.T) {
		c := New(mt.Coll, newTransform())
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, storedInvoice(id, "A-1", 10)))

		v, err := c.FindOne(ctx, bson.M{"number": "A-1"})
		if err != nil {
			mt.Fatalf("FindOne() error: %v", err)
		}
		inv, ok := v.(*invoice)
		if !ok {
			mt.Fatalf("FindOne() = %T, want *invoice", v)
		}
		if inv.ID != id || inv.Number != "A-1" || inv.Total != 10 {
			mt.Errorf("FindOne() = %+v, want id %v, A-1, 10", inv, id)
		}
	})

	mt.Run("find one missing", func(mt *mtest.T) {
		c := New(mt.Coll, newTransform())
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))

		_, err := c.FindOne(ctx, bson.M{"number": "nope"})
		if !errors.Is(err, errors.ErrCodeNotFound) {
			mt.Errorf("FindOne() error = %v, want %s", err, errors.ErrCodeNotFound)
		}
	})

	mt.Run("find", func(mt *mtest.T) {
		c := New(mt.Coll, newTransform())
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch,
			storedInvoice(primitive.NewObjectID(), "A-1", 10),
			storedInvoice(primitive.NewObjectID(), "A-2", 20),
			bson.D{{Key: "_id", Value: 3}, {Key: "plain", Value: true}},
		))

		cur, err := c.Find(ctx, nil)
		if err != nil {
			mt.Fatalf("Find() error: %v", err)
		}
		all, err := cur.All(ctx)
		if err != nil {
			mt.Fatalf("All() error: %v", err)
		}
		if len(all) != 3 {
			mt.Fatalf("len(All()) = %d, want 3", len(all))
		}
		if inv := all[1].(*invoice); inv.Number != "A-2" || inv.Total != 20 {
			mt.Errorf("all[1] = %+v, want A-2 with total 20", inv)
		}
		if m, ok := all[2].(map[string]any); !ok || m["plain"] != true {
			mt.Errorf("all[2] = %#v, want plain mapping", all[2])
		}
	})

	mt.Run("find bad snapshot", func(mt *mtest.T) {
		c := New(mt.Coll, newTransform())
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: 1}, {Key: "_type", Value: "unknown.Type"}},
		))

		cur, err := c.Find(ctx, bson.D{})
		if err != nil {
			mt.Fatalf("Find() error: %v", err)
		}
		if _, err := cur.All(ctx); !errors.Is(err, errors.ErrCodeUnknownType) {
			mt.Errorf("All() error = %v, want %s", err, errors.ErrCodeUnknownType)
		}
	})

	mt.Run("update", func(mt *mtest.T) {
		c := New(mt.Coll, newTransform())
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		matched, err := c.UpdateOne(ctx, bson.M{"number": "A-1"}, bson.M{"$set": bson.M{"total": 12}})
		if err != nil {
			mt.Fatalf("UpdateOne() error: %v", err)
		}
		if matched != 1 {
			mt.Errorf("UpdateOne() = %d, want 1", matched)
		}
	})

	mt.Run("update without operator", func(mt *mtest.T) {
		c := New(mt.Coll, newTransform())
		_, err := c.UpdateOne(ctx, bson.M{}, bson.M{"total": 12})
		if !errors.Is(err, errors.ErrCodeUnsupportedValue) {
			mt.Errorf("UpdateOne() error = %v, want %s", err, errors.ErrCodeUnsupportedValue)
		}
	})

	mt.Run("replace", func(mt *mtest.T) {
		c := New(mt.Coll, newTransform())
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		matched, err := c.ReplaceOne(ctx, bson.M{"_id": "inv-7"}, &invoice{Number: "A-7", Total: 70})
		if err != nil {
			mt.Fatalf("ReplaceOne() error: %v", err)
		}
		if matched != 1 {
			mt.Errorf("ReplaceOne() = %d, want 1", matched)
		}
	})

	mt.Run("delete", func(mt *mtest.T) {
		c := New(mt.Coll, newTransform())
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		deleted, err := c.DeleteOne(ctx, bson.M{"number": "A-1"})
		if err != nil {
			mt.Fatalf("DeleteOne() error: %v", err)
		}
		if deleted != 1 {
			mt.Errorf("DeleteOne() = %d, want 1", deleted)
		}
	})

	mt.Run("count", func(mt *mtest.T) {
		c := New(mt.Coll, newTransform())
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch,
			bson.D{{Key: "n", Value: int32(3)}},
		))

		n, err := c.CountDocuments(ctx, bson.M{})
		if err != nil {
			mt.Fatalf("CountDocuments() error: %v", err)
		}
		if n != 3 {
			mt.Errorf("CountDocuments() = %d, want 3", n)
		}
	})

	mt.Run("find by id reads through cache", func(mt *mtest.T) {
		tr := newTransform()
		fc, err := cache.NewFileCache(mt.TempDir())
		if err != nil {
			mt.Fatalf("NewFileCache() error: %v", err)
		}
		c := New(mt.Coll, tr, WithCache(snapcache.New(fc, tr)))
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, storedInvoice(id, "A-1", 10)))

		first, err := c.FindByID(ctx, id)
		if err != nil {
			mt.Fatalf("FindByID() error: %v", err)
		}
		// No mock response is queued, so this must be served from the cache.
		second, err := c.FindByID(ctx, id)
		if err != nil {
			mt.Fatalf("cached FindByID() error: %v", err)
		}
		if second.(*invoice).Number != first.(*invoice).Number {
			mt.Errorf("cached Number = %q, want %q", second.(*invoice).Number, first.(*invoice).Number)
		}

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))
		if _, err := c.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
			mt.Fatalf("DeleteOne() error: %v", err)
		}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))
		if _, err := c.FindByID(ctx, id); !errors.Is(err, errors.ErrCodeNotFound) {
			mt.Errorf("FindByID() after delete error = %v, want %s", err, errors.ErrCodeNotFound)
		}
	})
}
