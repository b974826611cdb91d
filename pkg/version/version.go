// Package version implements the schema evolution protocol for stored
// instances.
//
// A type that wants its stored snapshots to survive schema changes
// implements Adapter: it reports its current version and supplies one
// pure Step per version transition. Writes always stamp the current
// version; reads compare the stamped version with the current one and run
// the chain of steps between them before the object is restored.
//
//	var invoiceChain = version.Chain{
//	    Version: 2,
//	    Up: map[int]version.Step{
//	        2: func(s version.State) (version.State, error) {
//	            s["currency"] = "EUR"
//	            return s, nil
//	        },
//	    },
//	}
//
//	func (*Invoice) Migrations() version.Chain { return invoiceChain }
//
// Chains are checked for gaps when the type is registered, not when the
// first old document happens to be read.
package version

import (
	"sort"

	"github.com/matzehuels/docsnap/pkg/errors"
	"github.com/matzehuels/docsnap/pkg/snapshot"
)

// DefaultVersion is the version of every type without an Adapter and of
// every stored instance without a version marker.
const DefaultVersion = 1

// State is the mapping-shaped state of an instance as migration steps see
// it: values are already unflattened.
type State = map[string]any

// Step transforms a state between two adjacent versions. It may mutate
// and return its argument.
type Step func(State) (State, error)

// Adapter is implemented by types that take part in schema evolution.
type Adapter interface {
	// Migrations returns the type's version chain. It must be safe to call
	// on a zero value.
	Migrations() Chain
}

// Chain declares a current version and the steps around it.
//
// Up[n] moves a state from version n-1 to n. Down[n] moves a state from
// version n+1 to n.
type Chain struct {
	Version int
	Up      map[int]Step
	Down    map[int]Step
}

// Current returns the declared version of v, or DefaultVersion when v
// does not implement Adapter.
func Current(v any) int {
	if a, ok := v.(Adapter); ok {
		return a.Migrations().Version
	}
	return DefaultVersion
}

// Source returns the version stamped into state, or DefaultVersion when
// there is no marker. A marker that is not a whole number of at least
// DefaultVersion is reported as MALFORMED_TAG.
func Source(state State) (int, error) {
	v, ok := state[snapshot.VersionKey]
	if !ok {
		return DefaultVersion, nil
	}
	n, ok := snapshot.ToInt(v)
	if !ok || n < DefaultVersion {
		return 0, errors.New(errors.ErrCodeMalformedTag, "%s marker %v (%T) is not a valid version", snapshot.VersionKey, v, v)
	}
	return n, nil
}

// Stamp records version in state and returns it.
func Stamp(state State, version int) State {
	state[snapshot.VersionKey] = version
	return state
}

// Validate checks that c has no gaps. Upgrade steps must form a
// contiguous range ending at the current version and downgrade steps a
// contiguous range starting at it.
func Validate(typeName string, c Chain) error {
	if c.Version < DefaultVersion {
		return errors.New(errors.ErrCodeInvalidRegistration, "%s declares invalid version %d", typeName, c.Version)
	}

	if ups := sortedKeys(c.Up); len(ups) > 0 {
		if ups[len(ups)-1] > c.Version {
			return errors.New(errors.ErrCodeInvalidRegistration, "%s has an upgrade step to %d beyond current version %d", typeName, ups[len(ups)-1], c.Version)
		}
		if ups[0] <= DefaultVersion {
			return errors.New(errors.ErrCodeInvalidRegistration, "%s has an upgrade step to version %d", typeName, ups[0])
		}
		for n := ups[0]; n <= c.Version; n++ {
			if c.Up[n] == nil {
				return &errors.MigrationStepError{TypeName: typeName, From: n - 1, To: n}
			}
		}
	}

	if downs := sortedKeys(c.Down); len(downs) > 0 {
		if downs[0] < c.Version {
			return errors.New(errors.ErrCodeInvalidRegistration, "%s has a downgrade step to %d below current version %d", typeName, downs[0], c.Version)
		}
		for n := c.Version; n <= downs[len(downs)-1]; n++ {
			if c.Down[n] == nil {
				return &errors.MigrationStepError{TypeName: typeName, From: n + 1, To: n}
			}
		}
	}

	return nil
}

// Migrate runs the steps of c that move state from version from to
// version to, strictly in order, each step consuming the previous one's
// output. The version marker is removed from the result: the restored
// object always reports its current version.
func Migrate(typeName string, c Chain, state State, from, to int) (State, error) {
	delete(state, snapshot.VersionKey)

	switch {
	case from < to:
		for n := from + 1; n <= to; n++ {
			step := c.Up[n]
			if step == nil {
				return nil, &errors.MigrationStepError{TypeName: typeName, From: n - 1, To: n}
			}
			next, err := step(state)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeMigrationFailed, err, "upgrade %s to version %d", typeName, n)
			}
			if next != nil {
				state = next
			}
		}
	case from > to:
		for n := from - 1; n >= to; n-- {
			step := c.Down[n]
			if step == nil {
				return nil, &errors.MigrationStepError{TypeName: typeName, From: n + 1, To: n}
			}
			next, err := step(state)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeMigrationFailed, err, "downgrade %s to version %d", typeName, n)
			}
			if next != nil {
				state = next
			}
		}
	}

	delete(state, snapshot.VersionKey)
	return state, nil
}

func sortedKeys(m map[int]Step) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
