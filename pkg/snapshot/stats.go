package snapshot

import "sort"

// TypeVersion identifies one schema version of one registered type.
type TypeVersion struct {
	Type    string
	Version int
}

// Stats counts what a set of stored snapshots contains.
type Stats struct {
	Documents int
	Instances map[TypeVersion]int
	Tags      map[string]int
}

// NewStats returns empty statistics.
func NewStats() *Stats {
	return &Stats{
		Instances: make(map[TypeVersion]int),
		Tags:      make(map[string]int),
	}
}

// Add records every instance record and atom tag found in doc.
// Instances without a version marker are counted at version 1.
func (s *Stats) Add(doc any) {
	s.Documents++
	_ = Walk(doc, func(_ string, node any) error {
		if name, ok := TypeName(node); ok {
			version := 1
			if v, ok := Lookup(node, VersionKey); ok {
				if n, ok := ToInt(v); ok {
					version = n
				}
			}
			s.Instances[TypeVersion{Type: name, Version: version}]++
			return nil
		}
		if tag, ok := Tag(node); ok {
			s.Tags[tag]++
		}
		return nil
	})
}

// Sorted returns the instance counters ordered by type name, then version.
func (s *Stats) Sorted() []TypeVersion {
	keys := make([]TypeVersion, 0, len(s.Instances))
	for k := range s.Instances {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].Version < keys[j].Version
	})
	return keys
}
