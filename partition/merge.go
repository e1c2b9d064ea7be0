// Package partition merges child index summaries into partition indexes.
package partition

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/mwantia/gridindex/data"
	"github.com/mwantia/gridindex/index"
	"github.com/tidwall/btree"
)

// Child is one loaded child of a partition.
type Child struct {
	Ref     data.ChildRef
	BuildID uuid.UUID
	Summary index.Summary
}

type owned struct {
	variable data.Variable
	refs     btree.Set[int64]
	levels   *btree.BTreeG[data.Level]
	owners   []string
}

type group struct {
	name   string
	gridID string

	// Variant keys contributed by each child, in child order
	children []string
	variants map[string][]string
}

// Merge reconciles the summaries of children into one partition index.
// Variables are united by full identity and never merged across variants.
// Differing variant sets of a name on the same grid are reported as
// ambiguities while every variant stays in the table.
func Merge(name string, children []Child) *index.PartitionIndex {
	variables := btree.NewMap[string, *owned](0)
	groups := btree.NewMap[string, *group](0)
	var refs btree.Set[int64]

	pi := &index.PartitionIndex{
		Name:     name,
		Children: make([]index.ChildEntry, 0, len(children)),
	}

	for _, child := range children {
		pi.Children = append(pi.Children, index.ChildEntry{ChildRef: child.Ref, BuildID: child.BuildID})

		for _, ref := range child.Summary.ReferenceTimes {
			refs.Insert(ref.UnixNano())
		}

		for _, vs := range child.Summary.Variables {
			key := vs.Variable.Key()
			ov, ok := variables.Get(key)
			if !ok {
				ov = &owned{
					variable: vs.Variable,
					levels:   btree.NewBTreeG(func(a, b data.Level) bool { return data.CompareLevel(a, b) < 0 }),
				}
				variables.Set(key, ov)
			}
			for _, ref := range vs.ReferenceTimes {
				ov.refs.Insert(ref.UnixNano())
			}
			for _, level := range vs.Levels {
				ov.levels.Set(level)
			}
			if len(ov.owners) == 0 || ov.owners[len(ov.owners)-1] != child.Ref.Name {
				ov.owners = append(ov.owners, child.Ref.Name)
			}

			gk := vs.Variable.GroupKey()
			g, ok := groups.Get(gk)
			if !ok {
				g = &group{
					name:     vs.Variable.Name,
					gridID:   vs.Variable.GridID,
					variants: make(map[string][]string),
				}
				groups.Set(gk, g)
			}
			if _, ok := g.variants[child.Ref.Name]; !ok {
				g.children = append(g.children, child.Ref.Name)
			}
			if !slices.Contains(g.variants[child.Ref.Name], key) {
				g.variants[child.Ref.Name] = append(g.variants[child.Ref.Name], key)
			}
		}
	}

	pi.ReferenceTimes = unixTimes(&refs)

	pi.Variables = make([]index.OwnedVariable, 0, variables.Len())
	variables.Scan(func(_ string, ov *owned) bool {
		pi.Variables = append(pi.Variables, index.OwnedVariable{
			Variable:       ov.variable,
			ReferenceTimes: unixTimes(&ov.refs),
			Levels:         ov.levels.Items(),
			Owners:         ov.owners,
		})
		return true
	})

	groups.Scan(func(_ string, g *group) bool {
		if ambiguity, ok := g.ambiguity(variables); ok {
			pi.Ambiguities = append(pi.Ambiguities, ambiguity)
		}
		return true
	})
	return pi
}

func (g *group) ambiguity(variables *btree.Map[string, *owned]) (index.Ambiguity, bool) {
	if len(g.children) < 2 {
		return index.Ambiguity{}, false
	}

	first := slices.Sorted(slices.Values(g.variants[g.children[0]]))
	differs := false
	for _, child := range g.children[1:] {
		if !slices.Equal(first, slices.Sorted(slices.Values(g.variants[child]))) {
			differs = true
			break
		}
	}
	if !differs {
		return index.Ambiguity{}, false
	}

	var keys []string
	for _, child := range g.children {
		for _, key := range g.variants[child] {
			if !slices.Contains(keys, key) {
				keys = append(keys, key)
			}
		}
	}
	slices.Sort(keys)

	ambiguity := index.Ambiguity{
		Name:     g.name,
		GridID:   g.gridID,
		Children: g.children,
	}
	for _, key := range keys {
		if ov, ok := variables.Get(key); ok {
			ambiguity.Variants = append(ambiguity.Variants, ov.variable)
		}
	}
	return ambiguity, true
}

func unixTimes(set *btree.Set[int64]) []time.Time {
	result := make([]time.Time, 0, set.Len())
	set.Scan(func(ns int64) bool {
		result = append(result, time.Unix(0, ns).UTC())
		return true
	})
	return result
}
