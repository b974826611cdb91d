package snapshot

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestTag(t *testing.T) {
	tests := []struct {
		name    string
		node    any
		wantTag string
		wantOK  bool
	}{
		{"tuple", bson.A{TupleAtom, 1, 2}, TupleAtom, true},
		{"plain slice", []any{SetAtom, "a"}, SetAtom, true},
		{"deref", bson.A{DereferenceAtom, 1}, DereferenceAtom, true},
		{"unknown tag", bson.A{"_unknown", 1}, "", false},
		{"tag not first", bson.A{1, TupleAtom}, "", false},
		{"non-string first", bson.A{1, 2}, "", false},
		{"empty", bson.A{}, "", false},
		{"not a sequence", "_tuple", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag, ok := Tag(tt.node)
			if tag != tt.wantTag || ok != tt.wantOK {
				t.Errorf("Tag() = (%q, %v), want (%q, %v)", tag, ok, tt.wantTag, tt.wantOK)
			}
		})
	}
}

func TestIsPassthrough(t *testing.T) {
	pass := []any{
		time.Now(),
		primitive.NewDateTimeFromTime(time.Now()),
		primitive.NewObjectID(),
		primitive.Regex{Pattern: "^a", Options: "i"},
		primitive.Binary{Subtype: 0x00, Data: []byte{1}},
		primitive.JavaScript("function() {}"),
		primitive.DBPointer{DB: "test", Pointer: primitive.NewObjectID()},
		primitive.Timestamp{T: 1, I: 1},
	}
	for _, v := range pass {
		if !IsPassthrough(v) {
			t.Errorf("IsPassthrough(%T) = false, want true", v)
		}
	}

	for _, v := range []any{"text", 1, 1.5, true, nil, []byte("x"), bson.D{}} {
		if IsPassthrough(v) {
			t.Errorf("IsPassthrough(%T) = true, want false", v)
		}
	}
}

func TestAsMappingSortsUnordered(t *testing.T) {
	doc, ok := AsMapping(map[string]any{"b": 2, "a": 1, "c": 3})
	if !ok {
		t.Fatal("AsMapping() ok = false")
	}
	want := []string{"a", "b", "c"}
	for i, e := range doc {
		if e.Key != want[i] {
			t.Errorf("key[%d] = %q, want %q", i, e.Key, want[i])
		}
	}

	ordered := bson.D{{Key: "z", Value: 1}, {Key: "a", Value: 2}}
	got, _ := AsMapping(ordered)
	if got[0].Key != "z" {
		t.Errorf("bson.D order not preserved: %v", got)
	}
}

func TestInstanceHelpers(t *testing.T) {
	rec := bson.D{{Key: "foo", Value: "x"}, {Key: InstanceTypeKey, Value: "test-doc"}}
	if !IsInstance(rec) {
		t.Error("IsInstance() = false, want true")
	}
	if name, _ := TypeName(rec); name != "test-doc" {
		t.Errorf("TypeName() = %q, want %q", name, "test-doc")
	}
	if IsInstance(bson.M{"foo": 1}) {
		t.Error("IsInstance(plain) = true, want false")
	}
}

func TestToInt(t *testing.T) {
	tests := []struct {
		in     any
		want   int
		wantOK bool
	}{
		{int32(3), 3, true},
		{int64(4), 4, true},
		{5, 5, true},
		{float64(2), 2, true},
		{2.5, 0, false},
		{"2", 0, false},
	}
	for _, tt := range tests {
		got, ok := ToInt(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ToInt(%v) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestWalkPaths(t *testing.T) {
	doc := bson.D{
		{Key: "name", Value: "x"},
		{Key: "items", Value: bson.A{1, bson.D{{Key: "k", Value: true}}}},
	}
	var paths []string
	err := Walk(doc, func(path string, _ any) error {
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	want := []string{"", "name", "items", "items.0", "items.1", "items.1.k"}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestWalkSkipChildren(t *testing.T) {
	doc := bson.D{{Key: "skip", Value: bson.D{{Key: "inner", Value: 1}}}}
	visited := 0
	_ = Walk(doc, func(path string, _ any) error {
		visited++
		if path == "skip" {
			return SkipChildren
		}
		return nil
	})
	if visited != 2 {
		t.Errorf("visited = %d, want 2", visited)
	}
}

func TestStats(t *testing.T) {
	s := NewStats()
	s.Add(bson.D{
		{Key: "bar", Value: bson.D{{Key: "field", Value: "v"}, {Key: InstanceTypeKey, Value: "some-object"}}},
		{Key: "tags", Value: bson.A{SetAtom, "a", "b"}},
		{Key: VersionKey, Value: int32(2)},
		{Key: InstanceTypeKey, Value: "test-doc"},
	})
	s.Add(bson.M{InstanceTypeKey: "test-doc"})

	if s.Documents != 2 {
		t.Errorf("Documents = %d, want 2", s.Documents)
	}
	if got := s.Instances[TypeVersion{"test-doc", 2}]; got != 1 {
		t.Errorf("test-doc v2 = %d, want 1", got)
	}
	if got := s.Instances[TypeVersion{"test-doc", 1}]; got != 1 {
		t.Errorf("test-doc v1 = %d, want 1", got)
	}
	if got := s.Instances[TypeVersion{"some-object", 1}]; got != 1 {
		t.Errorf("some-object v1 = %d, want 1", got)
	}
	if got := s.Tags[SetAtom]; got != 1 {
		t.Errorf("set tags = %d, want 1", got)
	}

	sorted := s.Sorted()
	if sorted[0].Type != "some-object" || sorted[1] != (TypeVersion{"test-doc", 1}) {
		t.Errorf("Sorted() = %v", sorted)
	}
}
