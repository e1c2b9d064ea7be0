package partition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mwantia/gridindex/data"
	"github.com/mwantia/gridindex/index"
	"github.com/spf13/afero"
)

var (
	jan = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
)

func isobaric(values ...float64) []data.Level {
	levels := make([]data.Level, 0, len(values))
	for _, v := range values {
		levels = append(levels, data.Level{Type: data.LevelIsobaric, Value: v})
	}
	return levels
}

func summary(refs []time.Time, variables ...index.VariableSummary) index.Summary {
	return index.Summary{ReferenceTimes: refs, Variables: variables}
}

func child(name string, s index.Summary) Child {
	return Child{
		Ref:     data.ChildRef{Name: name, Kind: data.KindCollection, IndexPath: "/" + name + data.CollectionIndexExt},
		Summary: s,
	}
}

func TestMerge_Union(t *testing.T) {
	tmp := data.Variable{Name: "TMP", LevelType: data.LevelIsobaric, GridID: "0p25"}
	hgt := data.Variable{Name: "HGT", LevelType: data.LevelIsobaric, GridID: "0p25"}

	a := child("p-jan", summary([]time.Time{jan},
		index.VariableSummary{Variable: tmp, ReferenceTimes: []time.Time{jan}, Levels: isobaric(500, 850)},
	))
	b := child("p-feb", summary([]time.Time{feb},
		index.VariableSummary{Variable: tmp, ReferenceTimes: []time.Time{feb}, Levels: isobaric(250, 500)},
		index.VariableSummary{Variable: hgt, ReferenceTimes: []time.Time{feb}, Levels: isobaric(500)},
	))

	pi := Merge("p", []Child{a, b})

	if len(pi.Children) != 2 || pi.Children[0].Name != "p-jan" || pi.Children[1].Name != "p-feb" {
		t.Fatalf("Expected children in processing order, got %+v", pi.Children)
	}
	if len(pi.ReferenceTimes) != 2 || !pi.ReferenceTimes[0].Equal(jan) || !pi.ReferenceTimes[1].Equal(feb) {
		t.Errorf("Expected reference times [jan feb], got %v", pi.ReferenceTimes)
	}
	if len(pi.Variables) != 2 {
		t.Fatalf("Expected 2 variables, got %d", len(pi.Variables))
	}

	merged := pi.Variables[1]
	if merged.Variable != tmp {
		t.Fatalf("Expected TMP second, got %s", merged.Variable)
	}
	if len(merged.Levels) != 3 || merged.Levels[0].Value != 850 || merged.Levels[2].Value != 250 {
		t.Errorf("Expected levels 850, 500, 250, got %v", merged.Levels)
	}
	if len(merged.ReferenceTimes) != 2 {
		t.Errorf("Expected 2 reference times, got %v", merged.ReferenceTimes)
	}
	if len(merged.Owners) != 2 || merged.Owners[0] != "p-jan" || merged.Owners[1] != "p-feb" {
		t.Errorf("Expected owners [p-jan p-feb], got %v", merged.Owners)
	}
	if owners := pi.Variables[0].Owners; len(owners) != 1 || owners[0] != "p-feb" {
		t.Errorf("Expected HGT owned by p-feb, got %v", owners)
	}
	if len(pi.Ambiguities) != 0 {
		t.Errorf("Expected no ambiguities, got %+v", pi.Ambiguities)
	}

	// Merging is insensitive to the split of the same content
	whole := Merge("p", []Child{child("all", summary([]time.Time{jan, feb},
		index.VariableSummary{Variable: hgt, ReferenceTimes: []time.Time{feb}, Levels: isobaric(500)},
		index.VariableSummary{Variable: tmp, ReferenceTimes: []time.Time{jan, feb}, Levels: isobaric(850, 500, 250)},
	))})
	for i := range whole.Variables {
		if whole.Variables[i].Variable != pi.Variables[i].Variable {
			t.Errorf("Variable %d: expected %s, got %s", i, whole.Variables[i].Variable, pi.Variables[i].Variable)
		}
		if len(whole.Variables[i].Levels) != len(pi.Variables[i].Levels) {
			t.Errorf("Variable %d: expected %d levels, got %d", i, len(whole.Variables[i].Levels), len(pi.Variables[i].Levels))
		}
	}
}

func TestMerge_Ambiguity(t *testing.T) {
	kelvin := data.Variable{Name: "TMP", LevelType: data.LevelIsobaric, GridID: "0p25", Units: "K"}
	celsius := data.Variable{Name: "TMP", LevelType: data.LevelIsobaric, GridID: "0p25", Units: "C"}
	other := data.Variable{Name: "TMP", LevelType: data.LevelIsobaric, GridID: "1p00", Units: "C"}

	pi := Merge("p", []Child{
		child("a", summary([]time.Time{jan},
			index.VariableSummary{Variable: kelvin, ReferenceTimes: []time.Time{jan}, Levels: isobaric(500)},
			index.VariableSummary{Variable: other, ReferenceTimes: []time.Time{jan}, Levels: isobaric(500)},
		)),
		child("b", summary([]time.Time{jan},
			index.VariableSummary{Variable: celsius, ReferenceTimes: []time.Time{jan}, Levels: isobaric(500)},
			index.VariableSummary{Variable: other, ReferenceTimes: []time.Time{jan}, Levels: isobaric(500)},
		)),
	})

	if len(pi.Variables) != 3 {
		t.Fatalf("Expected every variant to be retained, got %d variables", len(pi.Variables))
	}
	if len(pi.Ambiguities) != 1 {
		t.Fatalf("Expected 1 ambiguity, got %+v", pi.Ambiguities)
	}

	ambiguity := pi.Ambiguities[0]
	if ambiguity.Name != "TMP" || ambiguity.GridID != "0p25" {
		t.Errorf("Unexpected ambiguity group %s/%s", ambiguity.Name, ambiguity.GridID)
	}
	if len(ambiguity.Variants) != 2 || len(ambiguity.Children) != 2 {
		t.Errorf("Expected 2 variants across 2 children, got %+v", ambiguity)
	}
	for _, ov := range pi.Variables {
		if ov.Variable == kelvin && (len(ov.Owners) != 1 || ov.Owners[0] != "a") {
			t.Errorf("Expected kelvin variant owned by a, got %v", ov.Owners)
		}
	}
}

func TestBuilder_Build(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := index.NewStore(fsys)
	tmp := data.Variable{Name: "TMP", LevelType: data.LevelIsobaric, GridID: "0p25"}

	leaf := &index.CollectionIndex{
		Name:           "p-a",
		ReferenceTimes: []time.Time{jan},
		Variables: []index.VariableEntry{
			{Variable: tmp, ReferenceTimes: []time.Time{jan}, Levels: isobaric(500)},
		},
	}
	if err := store.WriteCollection("/a/p-a.gcx", leaf); err != nil {
		t.Fatalf("WriteCollection failed: %v", err)
	}

	mp := &data.MPartition[struct{}]{
		Name:      "p",
		Dir:       "/",
		IndexPath: "/p.gpx",
		Children:  []data.ChildRef{{Name: "p-a", Kind: data.KindCollection, IndexPath: "/a/p-a.gcx"}},
	}

	builder := NewBuilder[struct{}](store, nil)
	pi, err := builder.Build(t.Context(), mp)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if pi.Children[0].BuildID != leaf.BuildID {
		t.Errorf("Expected child build id %s, got %s", leaf.BuildID, pi.Children[0].BuildID)
	}

	loaded, err := builder.Load("/p.gpx")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !loaded.Contains("TMP") || loaded.BuildID != pi.BuildID {
		t.Errorf("Loaded partition differs from built partition")
	}

	// Missing child index fails the partition and writes nothing
	mp.IndexPath = "/q.gpx"
	mp.Children = append(mp.Children, data.ChildRef{Name: "p-b", Kind: data.KindCollection, IndexPath: "/b/p-b.gcx"})
	if _, err := builder.Build(t.Context(), mp); !errors.Is(err, data.ErrChildFailed) || !errors.Is(err, data.ErrIndexNotExist) {
		t.Errorf("Expected ErrChildFailed wrapping ErrIndexNotExist, got %v", err)
	}
	if exists, _ := afero.Exists(fsys, "/q.gpx"); exists {
		t.Error("Expected no partition index after failed build")
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := builder.Build(ctx, mp); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
