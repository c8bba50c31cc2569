package metadata

import (
	"reflect"
	"testing"
	"time"

	"github.com/mrnkim/adland-tv/internal/analysis"
	"github.com/mrnkim/adland-tv/internal/brand"
)

var fixedNow = time.Date(2026, 2, 9, 18, 30, 0, 0, time.FixedZone("EST", -5*3600))

func TestMerge_ProvenanceOwnsKeys(t *testing.T) {
	p := Provenance{
		Title:      "Nike: Dream - Super Bowl LX",
		Brand:      "Nike",
		SourceURL:  "https://adland.tv/adnews/nike",
		Author:     "Dabitch",
		BatchTag:   "2026-super-bowl-commercials",
		Collection: "superbowl",
		AdlandTags: []string{"2026 Super Bowl LX", "Sports"},
	}
	r := analysis.Result{
		Theme:           "Inspirational",
		Brand:           "Nike Inc",
		ProductCategory: "Sports",
		Extra:           map[string]string{"title": "Other", "author": "Bot", "tone": "bold"},
	}

	a := Merge(p, r, fixedNow)

	if a.Title != p.Title || a.Author != "Dabitch" || a.Brand != "Nike" {
		t.Errorf("provenance-owned fields overridden: %+v", a)
	}
	if a.Theme != "Inspirational" || a.ProductCategory != "Sports" || a.Extra["tone"] != "bold" {
		t.Errorf("analysis fields missing: %+v", a)
	}
	if a.AdlandTags != "2026 Super Bowl LX, Sports" {
		t.Errorf("AdlandTags = %q", a.AdlandTags)
	}
	if a.AnalyzedAt != "2026-02-09T23:30:00Z" {
		t.Errorf("AnalyzedAt = %q", a.AnalyzedAt)
	}
}

func TestMerge_AnalysisFillsUnknownBrand(t *testing.T) {
	a := Merge(Provenance{Title: "Super Bowl LX teaser", Brand: brand.Unknown, SourceURL: "u"},
		analysis.Result{Brand: "Doritos"}, fixedNow)
	if a.Brand != "Doritos" {
		t.Errorf("Brand = %q, want analysis brand when provenance brand is unknown", a.Brand)
	}

	a = Merge(Provenance{Title: "t", SourceURL: "u"}, analysis.Result{}, fixedNow)
	if a.Brand != "" || a.AnalyzedAt == "" {
		t.Errorf("empty analysis merge = %+v", a)
	}
}

func TestMerge_Deterministic(t *testing.T) {
	p := Provenance{Title: "t", SourceURL: "u", Brand: "B"}
	r := analysis.Result{Theme: "Humor", Extra: map[string]string{"a": "1", "b": "2"}}
	if !reflect.DeepEqual(Merge(p, r, fixedNow).Map(), Merge(p, r, fixedNow).Map()) {
		t.Error("Merge is not deterministic")
	}
}

func TestAsset_Map(t *testing.T) {
	a := Asset{
		Title:     "Nike",
		SourceURL: "https://adland.tv/x",
		Theme:     "Humor",
		Extra:     map[string]string{"tone": "bold", "Bad Key": "x", "title": "dup", "empty": ""},
	}
	m := a.Map()
	want := map[string]any{"title": "Nike", "source_url": "https://adland.tv/x", "theme": "Humor", "tone": "bold"}
	if !reflect.DeepEqual(m, want) {
		t.Errorf("Map() = %v, want %v", m, want)
	}
	if got := a.InvalidKeys(); !reflect.DeepEqual(got, []string{"Bad Key", "title"}) {
		t.Errorf("InvalidKeys() = %v", got)
	}
}

func TestAsset_Validate(t *testing.T) {
	if err := (Asset{Title: "t", SourceURL: "u"}).Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	if err := (Asset{Title: " "}).Validate(); err == nil {
		t.Error("Validate() should reject missing title and source url")
	}
}

func TestFromMap_GetSet(t *testing.T) {
	a := FromMap(map[string]any{
		"title":            "Coke",
		"product_category": "Alcohol",
		"year":             float64(2026),
		"featured":         true,
		"gone":             nil,
	})
	if a.Title != "Coke" || a.Get("product_category") != "Alcohol" {
		t.Errorf("FromMap() = %+v", a)
	}
	if a.Get("year") != "2026" || a.Get("featured") != "true" || a.Get("gone") != "" {
		t.Errorf("extra conversions: %v", a.Extra)
	}

	a.Set("product_category", "Food & Beverage")
	a.Set("mood", "calm")
	m := a.Map()
	if m["product_category"] != "Food & Beverage" || m["mood"] != "calm" || m["year"] != "2026" {
		t.Errorf("Map() after Set = %v", m)
	}
}

func TestProvenance_UploadMetadata(t *testing.T) {
	m := Provenance{Title: "t", Brand: "b", SourceURL: "u", Collection: "superbowl", Author: "x"}.UploadMetadata()
	want := map[string]string{"title": "t", "brand": "b", "source_url": "u", "collection": "superbowl"}
	if !reflect.DeepEqual(m, want) {
		t.Errorf("UploadMetadata() = %v", m)
	}
}
