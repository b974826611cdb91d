package snapshot

import (
	"errors"
	"strconv"
)

// SkipChildren may be returned by a WalkFunc to prune the subtree below
// the current node.
var SkipChildren = errors.New("skip children")

// WalkFunc is called for every node visited by Walk. path is a
// dot-separated location such as "items.2.owner".
type WalkFunc func(path string, node any) error

// Walk visits node and all of its descendants depth-first, mapping values
// in key order and sequence elements in position order.
func Walk(node any, fn WalkFunc) error {
	return walk("", node, fn)
}

func walk(path string, node any, fn WalkFunc) error {
	if err := fn(path, node); err != nil {
		if errors.Is(err, SkipChildren) {
			return nil
		}
		return err
	}
	if doc, ok := AsMapping(node); ok {
		for _, e := range doc {
			if err := walk(join(path, e.Key), e.Value, fn); err != nil {
				return err
			}
		}
		return nil
	}
	if seq, ok := AsSequence(node); ok {
		for i, item := range seq {
			if err := walk(join(path, strconv.Itoa(i)), item, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
