package roster

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Alice", "alice"},
		{"alice ", "alice"},
		{"  ALICE  LIDDELL ", "alice liddell"},
		{"Mr. Darcy", "darcy"},
		{"Captain Ahab", "ahab"},
		{"Professor Moriarty", "moriarty"},
		{"Dr Watson", "watson"},
		{"Ahab,", "ahab"},
		{"İstanbul", "i̇stanbul"},
		{"", ""},
		{"   ", ""},
		// Honorific-only mentions keep the last token as the name.
		{"Mrs.", "mrs"},
		{"Queen", "queen"},
		{"Lady Queen", "queen"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMergeDeduplicatesVariants(t *testing.T) {
	r := New()
	r.Merge([]string{"Alice", "alice "}, 20)

	if r.Len() != 1 {
		t.Fatalf("expected 1 entity, got %d", r.Len())
	}
	e := r.Entities()[0]
	if e.Canonical != "alice" {
		t.Errorf("canonical: got %q, want %q", e.Canonical, "alice")
	}
	if len(e.Aliases) != 2 {
		t.Errorf("aliases: got %v, want both raw variants", e.Aliases)
	}
	if e.FirstSeen != 20 {
		t.Errorf("first seen: got %d, want 20", e.FirstSeen)
	}
}

func TestMergeAcrossCheckpoints(t *testing.T) {
	r := New()
	r.Merge([]string{"Ishmael", "Queequeg"}, 10)
	r.Merge([]string{"ishmael", "Ahab"}, 20)
	r.Merge([]string{"Captain Ahab"}, 30)

	if r.Len() != 3 {
		t.Fatalf("expected 3 entities, got %d", r.Len())
	}

	var ishmael, ahab *Entity
	entities := r.Entities()
	for i := range entities {
		switch entities[i].Canonical {
		case "ishmael":
			ishmael = &entities[i]
		case "ahab":
			ahab = &entities[i]
		}
	}
	if ishmael == nil || ahab == nil {
		t.Fatalf("missing expected entities: %+v", entities)
	}
	if len(ishmael.Mentions) != 2 || ishmael.Mentions[0] != 10 || ishmael.Mentions[1] != 20 {
		t.Errorf("ishmael mentions: got %v, want [10 20]", ishmael.Mentions)
	}
	if ahab.FirstSeen != 20 {
		t.Errorf("ahab first seen: got %d, want 20", ahab.FirstSeen)
	}
	// "Captain Ahab" normalizes to "ahab" and attaches as an alias.
	if len(ahab.Aliases) != 2 {
		t.Errorf("ahab aliases: got %v, want 2 variants", ahab.Aliases)
	}
}

func TestAmbiguousAliasTieBreak(t *testing.T) {
	r := New()
	// "pip" becomes an alias of two distinct entities.
	r.Merge([]string{"Philip Pirrip"}, 10)
	r.Merge([]string{"Philip Pirrip"}, 20)
	r.Merge([]string{"Pippa Moore"}, 20)
	entities := r.Entities()
	if len(entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(entities))
	}

	// Manually seed the shared alias on both.
	rr := FromEntities([]Entity{
		{Canonical: "philip pirrip", Aliases: []Alias{{Raw: "Philip Pirrip", Seen: 10}, {Raw: "Pip", Seen: 20}}, FirstSeen: 10, Mentions: []int{10, 20}},
		{Canonical: "pippa moore", Aliases: []Alias{{Raw: "Pippa Moore", Seen: 20}, {Raw: "Pip", Seen: 20}}, FirstSeen: 20, Mentions: []int{20}},
	})
	rr.Merge([]string{"pip"}, 30)

	if rr.Len() != 2 {
		t.Fatalf("ambiguous alias must not merge entities: got %d", rr.Len())
	}
	for _, e := range rr.Entities() {
		switch e.Canonical {
		case "philip pirrip":
			// Most established entity receives the mention.
			if e.Mentions[len(e.Mentions)-1] != 30 {
				t.Errorf("established entity missing checkpoint 30: %v", e.Mentions)
			}
		case "pippa moore":
			for _, m := range e.Mentions {
				if m == 30 {
					t.Errorf("less established entity received ambiguous mention: %v", e.Mentions)
				}
			}
		}
	}
}

func TestSnapshotFiltersByFirstSeen(t *testing.T) {
	r := New()
	r.Merge([]string{"Alice"}, 10)
	r.Merge([]string{"Alice", "Rabbit"}, 20)
	r.Merge([]string{"Queen"}, 30)

	snap := r.Snapshot(20)
	if len(snap) != 2 {
		t.Fatalf("snapshot at 20: got %d entities, want 2", len(snap))
	}
	for _, e := range snap {
		if e.Canonical == "queen" {
			t.Error("snapshot at 20 leaked entity first seen at 30")
		}
	}

	// Snapshot mention sets are clipped to the horizon.
	full := r.Snapshot(30)
	if len(full) != 3 {
		t.Fatalf("snapshot at 30: got %d entities, want 3", len(full))
	}
}

func TestSnapshotClipsAliases(t *testing.T) {
	r := New()
	r.Merge([]string{"Mr. Darcy"}, 10)
	// A new surface form of the same entity appears later.
	r.Merge([]string{"Darcy,"}, 30)

	early := r.Snapshot(10)
	if len(early) != 1 {
		t.Fatalf("snapshot at 10: got %d entities, want 1", len(early))
	}
	if got := early[0].AliasNames(); len(got) != 1 || got[0] != "Mr. Darcy" {
		t.Errorf("snapshot at 10 aliases: got %v, want [Mr. Darcy]", got)
	}

	late := r.Snapshot(30)
	if got := late[0].AliasNames(); len(got) != 2 {
		t.Errorf("snapshot at 30 aliases: got %v, want both variants", got)
	}
}

func TestRosterMonotonicity(t *testing.T) {
	r := New()
	r.Merge([]string{"Alice"}, 10)
	r.Merge([]string{"Rabbit"}, 20)
	r.Merge([]string{"Hatter", "alice"}, 30)

	prev := map[string]bool{}
	for _, cp := range []int{10, 20, 30} {
		now := map[string]bool{}
		for _, e := range r.Snapshot(cp) {
			now[e.Canonical] = true
		}
		for name := range prev {
			if !now[name] {
				t.Errorf("entity %q present at earlier checkpoint missing at %d", name, cp)
			}
		}
		prev = now
	}
}

func TestFromEntitiesRoundTrip(t *testing.T) {
	r := New()
	r.Merge([]string{"Mr. Darcy", "Elizabeth"}, 10)
	r.Merge([]string{"Darcy"}, 20)

	restored := FromEntities(r.Entities())
	if restored.Len() != r.Len() {
		t.Fatalf("restored %d entities, want %d", restored.Len(), r.Len())
	}

	// Alias matching still works after a round trip.
	restored.Merge([]string{"darcy"}, 30)
	if restored.Len() != r.Len() {
		t.Errorf("restored roster re-created an entity for a known alias")
	}
}

func TestNames(t *testing.T) {
	r := New()
	r.Merge([]string{"Alice"}, 10)
	r.Merge([]string{"Rabbit"}, 30)

	names := r.Names(20)
	if len(names) != 1 || names[0] != "alice" {
		t.Errorf("names at 20: got %v, want [alice]", names)
	}
}
