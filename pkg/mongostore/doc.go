// Package mongostore stores registered objects in MongoDB collections.
//
// A [Collection] wraps a *mongo.Collection and runs every value through a
// [transform.Transform]: documents are flattened before they reach the
// driver and unflattened after they come back, so callers work with live
// objects throughout.
//
//	store := mongostore.New(client.Database("app").Collection("invoices"), tr)
//	id, err := store.InsertOne(ctx, &Invoice{Total: 10})
//	v, err := store.FindOne(ctx, bson.M{"_id": id})
//	inv := v.(*Invoice)
//
// Filters and updates are flattened too, so registered values, enums and
// tuples may appear in them and compare equal to what was stored.
//
// Network errors and timeouts are retried with backoff. Codec errors are
// returned as they are; driver errors carry the STORAGE code.
package mongostore
