package snapcache

import (
	"bytes"
	"context"
	stderrors "errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/docsnap/pkg/cache"
	"github.com/matzehuels/docsnap/pkg/codec"
	"github.com/matzehuels/docsnap/pkg/document"
	"github.com/matzehuels/docsnap/pkg/errors"
	"github.com/matzehuels/docsnap/pkg/registry"
	"github.com/matzehuels/docsnap/pkg/transform"
)

type note struct {
	document.Document `bson:",inline"`
	Text              string    `bson:"text"`
	Tags              []string  `bson:"tags"`
	Created           time.Time `bson:"created"`
	Peer              *note     `bson:"peer"`
}

func (n *note) Snapshot() (any, error) {
	s, err := document.Snapshot(n)
	return s, err
}
func (n *note) Restore(state any) error { return document.Restore(n, state) }

func newStore(t *testing.T) (*Store, *cache.FileCache) {
	t.Helper()
	reg := registry.New()
	reg.MustRegister("test.Note", (*note)(nil))
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache() error: %v", err)
	}
	return New(fc, transform.New(reg, nil), WithTTL(time.Hour)), fc
}

func TestPutGetDocument(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	n := &note{Text: "hi", Tags: []string{"a", "b"}, Created: created}
	n.Peer = n
	if err := s.PutDocument(ctx, "notes", 1, n); err != nil {
		t.Fatalf("PutDocument() error: %v", err)
	}

	got, hit, err := s.GetDocument(ctx, "notes", 1)
	if err != nil || !hit {
		t.Fatalf("GetDocument() = %v, %v, want hit", hit, err)
	}
	out := got.(*note)
	if out.Text != "hi" || !reflect.DeepEqual(out.Tags, []string{"a", "b"}) {
		t.Errorf("note = %+v, want Text=hi Tags=[a b]", out)
	}
	if !out.Created.Equal(created) {
		t.Errorf("Created = %v, want %v", out.Created, created)
	}
	if out.Peer != out {
		t.Error("Peer is not the note itself")
	}

	if err := s.Forget(ctx, "notes", 1); err != nil {
		t.Fatalf("Forget() error: %v", err)
	}
	if _, hit, _ := s.GetDocument(ctx, "notes", 1); hit {
		t.Error("GetDocument after Forget hit, want miss")
	}
}

func TestPutScalarAndTuple(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"text", "plain", "plain"},
		{"tuple", codec.Tuple{"a", "b"}, codec.Tuple{"a", "b"}},
		{"bytes", []byte{0xff, 0x00}, []byte{0xff, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Put(ctx, tt.name, tt.in); err != nil {
				t.Fatalf("Put() error: %v", err)
			}
			got, hit, err := s.Get(ctx, tt.name)
			if err != nil || !hit {
				t.Fatalf("Get() = %v, %v, want hit", hit, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Get() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestGetMiss(t *testing.T) {
	s, _ := newStore(t)
	got, hit, err := s.Get(context.Background(), "nothing")
	if got != nil || hit || err != nil {
		t.Errorf("Get() = %v, %v, %v, want miss", got, hit, err)
	}
}

func TestGetUnreadableEntry(t *testing.T) {
	ctx := context.Background()
	s, fc := newStore(t)
	if err := fc.Set(ctx, "k", []byte("not bson"), 0); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if _, hit, err := s.Get(ctx, "k"); hit || err != nil {
		t.Errorf("Get() = %v, %v, want clean miss", hit, err)
	}
	if _, hit, _ := fc.Get(ctx, "k"); hit {
		t.Error("unreadable entry should have been removed")
	}
}

// stuckCache keeps entries it is asked to delete.
type stuckCache struct{ *cache.FileCache }

func (stuckCache) Delete(context.Context, string) error { return stderrors.New("read-only") }

func TestGetUnreadableEntryDeleteFails(t *testing.T) {
	ctx := context.Background()
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache() error: %v", err)
	}
	if err := fc.Set(ctx, "k", []byte("not bson"), 0); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	var buf bytes.Buffer
	reg := registry.New()
	s := New(stuckCache{fc}, transform.New(reg, nil), WithLogger(log.New(&buf)))

	if _, hit, err := s.Get(ctx, "k"); hit || err != nil {
		t.Errorf("Get() = %v, %v, want clean miss", hit, err)
	}
	if out := buf.String(); !strings.Contains(out, "removing unreadable snapshot failed") || !strings.Contains(out, "read-only") {
		t.Errorf("log = %q, want the failed removal reported", out)
	}
}

func TestPutUnsupported(t *testing.T) {
	s, _ := newStore(t)
	err := s.Put(context.Background(), "k", map[int]string{1: "x"})
	if !errors.Is(err, errors.ErrCodeNonStringKey) {
		t.Errorf("Put() error = %v, want %s", err, errors.ErrCodeNonStringKey)
	}
}
