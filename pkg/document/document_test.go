package document

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type inner struct {
	Field string `bson:"field"`
}

type sample struct {
	Document
	Foo       string              `bson:"foo"`
	Count     int                 `bson:"count"`
	Ratio     float64             `bson:"ratio,omitempty"`
	Tags      []string            `bson:"tags"`
	Pair      [2]int              `bson:"pair"`
	Labels    map[string]int      `bson:"labels"`
	Members   map[string]struct{} `bson:"members"`
	Child     *inner              `bson:"child"`
	CreatedAt time.Time           `bson:"created_at"`
	Untagged  string
	Skipped   string `bson:"-"`
	hidden    string
}

func TestSnapshot(t *testing.T) {
	child := &inner{Field: "value"}
	s := &sample{Foo: "foo", Count: 3, Child: child, Untagged: "u", Skipped: "s", hidden: "h"}
	s.ID = primitive.NewObjectID()

	state, err := Snapshot(s)
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}

	if state[IDKey] != s.ID {
		t.Errorf("_id = %v, want %v", state[IDKey], s.ID)
	}
	if state["foo"] != "foo" || state["count"] != 3 {
		t.Errorf("state = %v", state)
	}
	if state["child"] != child {
		t.Error("nested pointers should be returned untouched")
	}
	if state["untagged"] != "u" {
		t.Errorf("untagged = %v, want u", state["untagged"])
	}
	for _, key := range []string{"ratio", "Skipped", "skipped", "hidden"} {
		if _, ok := state[key]; ok {
			t.Errorf("key %q should not be present", key)
		}
	}
}

func TestSnapshotOmitsEmptyID(t *testing.T) {
	state, err := Snapshot(&sample{})
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if _, ok := state[IDKey]; ok {
		t.Error("zero _id should be omitted")
	}
}

func TestRestore(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond).UTC()
	child := &inner{Field: "value"}
	state := map[string]any{
		IDKey:        "doc-1",
		"foo":        "foo",
		"count":      int32(7),
		"ratio":      0.5,
		"tags":       []any{"a", "b"},
		"pair":       []any{int64(1), int64(2)},
		"labels":     map[string]any{"x": int32(1)},
		"members":    map[any]struct{}{"m": {}},
		"child":      child,
		"created_at": primitive.NewDateTimeFromTime(now),
		"unknown":    "ignored",
	}

	var s sample
	if err := Restore(&s, state); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}

	if s.ID != "doc-1" || s.Foo != "foo" || s.Count != 7 || s.Ratio != 0.5 {
		t.Errorf("scalars = %+v", s)
	}
	if !reflect.DeepEqual(s.Tags, []string{"a", "b"}) {
		t.Errorf("Tags = %v", s.Tags)
	}
	if s.Pair != [2]int{1, 2} {
		t.Errorf("Pair = %v", s.Pair)
	}
	if s.Labels["x"] != 1 {
		t.Errorf("Labels = %v", s.Labels)
	}
	if _, ok := s.Members["m"]; !ok {
		t.Errorf("Members = %v", s.Members)
	}
	if s.Child != child {
		t.Error("Child pointer should be assigned as-is")
	}
	if !s.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", s.CreatedAt, now)
	}
}

func TestRestoreKeepsDefaults(t *testing.T) {
	s := sample{Foo: "default foo"}
	if err := Restore(&s, map[string]any{"count": 1}); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if s.Foo != "default foo" {
		t.Errorf("Foo = %q, want default preserved", s.Foo)
	}
}

func TestRestoreErrors(t *testing.T) {
	var s sample
	if err := Restore(&s, "not a map"); err == nil {
		t.Error("Restore(non-map) should fail")
	}
	if err := Restore(&s, map[string]any{"count": "three"}); err == nil {
		t.Error("Restore(string into int) should fail")
	}
	if err := Restore(s, map[string]any{}); err == nil {
		t.Error("Restore(non-pointer) should fail")
	}
	if err := Restore(&s, map[string]any{"pair": []any{1}}); err == nil {
		t.Error("Restore(wrong array length) should fail")
	}
}

type binaries struct {
	Key  uuid.UUID        `bson:"key"`
	Blob primitive.Binary `bson:"blob"`
}

func TestRestoreBinaryFields(t *testing.T) {
	id := uuid.New()
	uuidBlob := primitive.Binary{Subtype: 0x04, Data: id[:]}

	tests := []struct {
		name  string
		state map[string]any
		want  binaries
	}{
		{"binary into uuid", map[string]any{"key": uuidBlob}, binaries{Key: id}},
		{"uuid binary into binary", map[string]any{"blob": uuidBlob}, binaries{Blob: uuidBlob}},
		{"uuid into binary", map[string]any{"blob": id}, binaries{Blob: uuidBlob}},
		{"generic binary into binary", map[string]any{"blob": primitive.Binary{Data: []byte{1, 2}}}, binaries{Blob: primitive.Binary{Data: []byte{1, 2}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got binaries
			if err := Restore(&got, tt.state); err != nil {
				t.Fatalf("Restore() error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Restore() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRestoreBinaryFieldErrors(t *testing.T) {
	tests := []struct {
		name  string
		value primitive.Binary
	}{
		{"wrong subtype", primitive.Binary{Subtype: 0x00, Data: make([]byte, 16)}},
		{"wrong length", primitive.Binary{Subtype: 0x04, Data: []byte{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got binaries
			if err := Restore(&got, map[string]any{"key": tt.value}); err == nil {
				t.Errorf("Restore(%v) should fail", tt.value)
			}
		})
	}
}

func TestIdentifiable(t *testing.T) {
	var s sample
	var id Identifiable = &s
	id.SetDocumentID("abc")
	if s.DocumentID() != "abc" {
		t.Errorf("DocumentID() = %v, want abc", s.DocumentID())
	}
}
