package document

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// uuidSubtype is the BSON binary subtype of RFC 4122 UUIDs.
const uuidSubtype byte = 0x04

var (
	timeType   = reflect.TypeOf(time.Time{})
	uuidType   = reflect.TypeOf(uuid.UUID{})
	binaryType = reflect.TypeOf(primitive.Binary{})
)

// assign stores value into dst, converting between the shapes the
// unserializer produces and the declared field type.
func assign(dst reflect.Value, value any) error {
	if value == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	src := reflect.ValueOf(value)

	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return nil
	}

	if dt, ok := value.(primitive.DateTime); ok && dst.Type() == timeType {
		dst.Set(reflect.ValueOf(dt.Time()))
		return nil
	}

	switch v := value.(type) {
	case primitive.Binary:
		if dst.Type() == uuidType {
			if v.Subtype != uuidSubtype {
				return fmt.Errorf("cannot assign binary subtype %#x to %s", v.Subtype, dst.Type())
			}
			id, err := uuid.FromBytes(v.Data)
			if err != nil {
				return fmt.Errorf("cannot assign binary to %s: %w", dst.Type(), err)
			}
			dst.Set(reflect.ValueOf(id))
			return nil
		}
	case uuid.UUID:
		if dst.Type() == binaryType {
			dst.Set(reflect.ValueOf(primitive.Binary{Subtype: uuidSubtype, Data: v[:]}))
			return nil
		}
	}

	if isNumeric(src.Kind()) && isNumeric(dst.Kind()) {
		dst.Set(src.Convert(dst.Type()))
		return nil
	}

	switch dst.Kind() {
	case reflect.Pointer:
		elem := reflect.New(dst.Type().Elem())
		if err := assign(elem.Elem(), value); err != nil {
			return err
		}
		dst.Set(elem)
		return nil

	case reflect.Slice:
		if src.Kind() != reflect.Slice && src.Kind() != reflect.Array {
			break
		}
		out := reflect.MakeSlice(dst.Type(), src.Len(), src.Len())
		for i := 0; i < src.Len(); i++ {
			if err := assign(out.Index(i), src.Index(i).Interface()); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		dst.Set(out)
		return nil

	case reflect.Array:
		if src.Kind() != reflect.Slice && src.Kind() != reflect.Array {
			break
		}
		if src.Len() != dst.Len() {
			return fmt.Errorf("cannot assign %d items to %s", src.Len(), dst.Type())
		}
		for i := 0; i < src.Len(); i++ {
			if err := assign(dst.Index(i), src.Index(i).Interface()); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return nil

	case reflect.Map:
		if src.Kind() != reflect.Map {
			break
		}
		out := reflect.MakeMapWithSize(dst.Type(), src.Len())
		iter := src.MapRange()
		for iter.Next() {
			key := reflect.New(dst.Type().Key()).Elem()
			if err := assign(key, iter.Key().Interface()); err != nil {
				return fmt.Errorf("key %v: %w", iter.Key(), err)
			}
			elem := reflect.New(dst.Type().Elem()).Elem()
			if err := assign(elem, iter.Value().Interface()); err != nil {
				return fmt.Errorf("%v: %w", iter.Key(), err)
			}
			out.SetMapIndex(key, elem)
		}
		dst.Set(out)
		return nil
	}

	if src.Type().ConvertibleTo(dst.Type()) && src.Kind() == dst.Kind() {
		dst.Set(src.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, dst.Type())
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
