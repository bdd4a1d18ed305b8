package resolver

import (
	"strings"
	"testing"

	"shopbot/internal/models"
)

func catalog(names ...string) []models.Item {
	items := make([]models.Item, 0, len(names))
	for i, name := range names {
		items = append(items, models.Item{ID: int64(i + 1), Name: name})
	}
	return items
}

func TestCandidatesIDShortCircuit(t *testing.T) {
	items := []models.Item{
		{ID: 7, Name: "Sword"},
		{ID: 12, Name: "7"},
	}
	got := Candidates(items, " 7 ")
	if len(got) != 1 || got[0].Item.ID != 7 || got[0].Score != 1 {
		t.Fatalf("expected id match only, got %#v", got)
	}
}

func TestCandidatesSignedNumberIsAName(t *testing.T) {
	items := []models.Item{
		{ID: 7, Name: "Sword"},
		{ID: 8, Name: "+7 Blade"},
	}
	for _, query := range []string{"+7", "-7"} {
		got := Candidates(items, query)
		if len(got) != 1 || got[0].Item.ID != 8 {
			t.Fatalf("%q: expected name match on +7 Blade, got %#v", query, got)
		}
	}
	if _, ok := ByID(items, "+7"); ok {
		t.Fatal("signed query must not resolve as an id")
	}
}

func TestCandidatesUnknownIDFallsBackToNames(t *testing.T) {
	items := []models.Item{{ID: 1, Name: "Sword"}, {ID: 2, Name: "404"}}
	got := Candidates(items, "404")
	if len(got) != 1 || got[0].Item.ID != 2 {
		t.Fatalf("expected name match, got %#v", got)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"  Iron   SWORD!! ",
		"Меч-кладенец",
		"ǅemal's \t axe",
		"Straße",
		"...",
		"",
		"snake_case item",
		"éclair",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Fatalf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  Iron   SWORD!! ": "iron sword",
		"Меч-Кладенец":      "меч кладенец",
		"snake_case":        "snake_case",
		"a.b,c":             "a b c",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestScoreEmpty(t *testing.T) {
	if Score("", "sword") != 0 || Score("sword", "") != 0 {
		t.Fatal("expected empty inputs to score 0")
	}
}

func TestScorePrefixNeverDecreases(t *testing.T) {
	queries := []string{"sw", "ore", "potion", "x"}
	names := []string{"shield", "bow", "apple pie", "a very long enchanted item name", "z"}
	for _, q := range queries {
		for _, name := range names {
			if strings.Contains(name, q) {
				continue
			}
			before := Score(q, name)
			after := Score(q, q+name)
			if after < before {
				t.Fatalf("prefixing %q onto %q lowered score %.3f -> %.3f", q, name, before, after)
			}
		}
	}
}

func TestCandidatesSwrd(t *testing.T) {
	got := Candidates(catalog("Sword", "Shield"), "swrd")
	if len(got) != 1 {
		t.Fatalf("expected only Sword above threshold, got %#v", got)
	}
	if got[0].Item.Name != "Sword" || got[0].Score < MinScore {
		t.Fatalf("unexpected candidate: %#v", got[0])
	}
	if s := Score("swrd", "shield"); s >= MinScore {
		t.Fatalf("expected shield below threshold, got %.3f", s)
	}
}

func TestCandidatesOrdering(t *testing.T) {
	got := Candidates(catalog("Iron Ore", "Ore"), "ore")
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Item.Name != "Ore" || got[1].Item.Name != "Iron Ore" {
		t.Fatalf("expected exact match first, got %q, %q", got[0].Item.Name, got[1].Item.Name)
	}
}

func TestCandidatesTiesKeepCatalogOrder(t *testing.T) {
	got := Candidates(catalog("Ore B", "Ore A", "Ore"), "ore")
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	for i, want := range []string{"Ore B", "Ore A", "Ore"} {
		if got[i].Score != 1 || got[i].Item.Name != want {
			t.Fatalf("position %d: got %q (%.2f), want %q", i, got[i].Item.Name, got[i].Score, want)
		}
	}
}

func TestCandidatesTruncated(t *testing.T) {
	names := make([]string, 0, 60)
	for i := 0; i < 60; i++ {
		names = append(names, "gem")
	}
	if got := Candidates(catalog(names...), "gem"); len(got) != MaxCandidates {
		t.Fatalf("expected %d candidates, got %d", MaxCandidates, len(got))
	}
}

func TestCandidatesBlankQuery(t *testing.T) {
	if got := Candidates(catalog("Sword"), " !! "); got != nil {
		t.Fatalf("expected no candidates, got %#v", got)
	}
}
