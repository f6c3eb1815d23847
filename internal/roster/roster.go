// Package roster accumulates character mentions across checkpoints into a
// cumulative, deduplicated roster. Growth is monotonic: entities and aliases
// are never removed, which makes point-in-time snapshots a filter on the
// first-seen checkpoint.
package roster

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// honorifics are leading tokens stripped before canonicalization, so
// "Captain Ahab" and "Ahab" resolve to the same entity.
var honorifics = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "miss": {}, "dr": {}, "sir": {},
	"lady": {}, "lord": {}, "prof": {}, "professor": {}, "captain": {},
	"king": {}, "queen": {}, "prince": {}, "princess": {},
}

var folder = cases.Fold()

// Normalize canonicalizes a raw mention: Unicode case folding, whitespace
// collapsing, leading honorific stripping, and trailing punctuation removal.
// A mention made up entirely of honorifics keeps its last token as the name,
// so "Queen" stays addressable as an entity. Returns "" for mentions that
// normalize to nothing.
func Normalize(raw string) string {
	folded := folder.String(raw)
	tokens := strings.Fields(folded)

	for len(tokens) > 1 {
		head := strings.TrimRight(tokens[0], ".")
		if _, ok := honorifics[head]; !ok {
			break
		}
		tokens = tokens[1:]
	}

	for i, tok := range tokens {
		tokens[i] = strings.Trim(tok, ".,;:!?\"'")
	}

	joined := strings.Join(tokens, " ")
	return strings.TrimSpace(joined)
}

// Alias is one raw mention string recorded for an entity, tagged with the
// checkpoint at which it was first observed so snapshots can clip it.
type Alias struct {
	Raw  string `json:"raw"`
	Seen int    `json:"seen"`
}

// Entity is one character known to the roster.
type Entity struct {
	// Canonical is the normalized name the entity was created under.
	Canonical string `json:"canonical"`
	// Aliases are the raw mention strings observed for this entity,
	// in first-observed order.
	Aliases []Alias `json:"aliases"`
	// FirstSeen is the checkpoint progress at which the entity first
	// appeared.
	FirstSeen int `json:"first_seen"`
	// Mentions are the checkpoint progress values at which the entity was
	// mentioned, ascending.
	Mentions []int `json:"mentions"`

	aliasKeys map[string]struct{}
}

// matches reports whether a normalized mention resolves to this entity,
// either via its canonical name or any recorded alias.
func (e *Entity) matches(key string) bool {
	if key == e.Canonical {
		return true
	}
	_, ok := e.aliasKeys[key]
	return ok
}

func (e *Entity) addAlias(raw string, checkpoint int) {
	key := Normalize(raw)
	if key == "" {
		return
	}
	if e.aliasKeys == nil {
		e.aliasKeys = make(map[string]struct{})
	}
	for _, a := range e.Aliases {
		if a.Raw == raw {
			return
		}
	}
	e.Aliases = append(e.Aliases, Alias{Raw: raw, Seen: checkpoint})
	e.aliasKeys[key] = struct{}{}
}

// AliasNames returns the raw alias strings in first-observed order.
func (e *Entity) AliasNames() []string {
	out := make([]string, 0, len(e.Aliases))
	for _, a := range e.Aliases {
		out = append(out, a.Raw)
	}
	return out
}

func (e *Entity) addMention(checkpoint int) {
	for _, m := range e.Mentions {
		if m == checkpoint {
			return
		}
	}
	e.Mentions = append(e.Mentions, checkpoint)
	sort.Ints(e.Mentions)
}

// clone deep-copies the exported state of an entity.
func (e *Entity) clone() Entity {
	cp := Entity{
		Canonical: e.Canonical,
		FirstSeen: e.FirstSeen,
		Aliases:   append([]Alias(nil), e.Aliases...),
		Mentions:  append([]int(nil), e.Mentions...),
	}
	return cp
}

// Roster is the cumulative character state for one book. Not safe for
// concurrent mutation; each book has exactly one generation run at a time.
type Roster struct {
	entities []*Entity
}

// New returns an empty roster.
func New() *Roster {
	return &Roster{}
}

// FromEntities rebuilds a roster from previously persisted entities,
// preserving order.
func FromEntities(entities []Entity) *Roster {
	r := &Roster{}
	for i := range entities {
		e := entities[i].clone()
		e.aliasKeys = make(map[string]struct{}, len(e.Aliases))
		for _, a := range e.Aliases {
			if key := Normalize(a.Raw); key != "" {
				e.aliasKeys[key] = struct{}{}
			}
		}
		r.entities = append(r.entities, &e)
	}
	return r
}

// Len returns the number of known entities.
func (r *Roster) Len() int {
	return len(r.entities)
}

// Merge folds the raw mentions observed in one checkpoint's window into the
// roster. Each mention either attaches to an existing entity (matching
// canonical name or alias) or creates a new one. When a mention matches
// several distinct entities the most established one wins (most prior
// mention checkpoints, earliest first-seen on a tie); ambiguous matches
// never merge two entities into each other.
func (r *Roster) Merge(mentions []string, checkpoint int) {
	for _, raw := range mentions {
		key := Normalize(raw)
		if key == "" {
			continue
		}

		target := r.resolve(key)
		if target == nil {
			target = &Entity{
				Canonical: key,
				FirstSeen: checkpoint,
				aliasKeys: make(map[string]struct{}),
			}
			r.entities = append(r.entities, target)
		}
		target.addAlias(raw, checkpoint)
		target.addMention(checkpoint)
	}
}

// resolve finds the entity a normalized mention should attach to.
func (r *Roster) resolve(key string) *Entity {
	var best *Entity
	for _, e := range r.entities {
		if !e.matches(key) {
			continue
		}
		if best == nil {
			best = e
			continue
		}
		// Ambiguous alias: prefer the entity with more prior mention
		// checkpoints, then the earlier first-seen.
		switch {
		case len(e.Mentions) > len(best.Mentions):
			best = e
		case len(e.Mentions) == len(best.Mentions) && e.FirstSeen < best.FirstSeen:
			best = e
		}
	}
	return best
}

// Entities returns a deep copy of all entities in first-seen order.
func (r *Roster) Entities() []Entity {
	out := make([]Entity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e.clone())
	}
	return out
}

// Snapshot returns the roster as of a checkpoint: entities first seen at or
// before it, with mention and alias sets filtered to that horizon. The result
// never leaks an entity, or a name variant, introduced by a later window.
func (r *Roster) Snapshot(checkpoint int) []Entity {
	var out []Entity
	for _, e := range r.entities {
		if e.FirstSeen > checkpoint {
			continue
		}
		cp := e.clone()
		mentions := cp.Mentions[:0]
		for _, m := range cp.Mentions {
			if m <= checkpoint {
				mentions = append(mentions, m)
			}
		}
		cp.Mentions = mentions
		aliases := cp.Aliases[:0]
		for _, a := range cp.Aliases {
			if a.Seen <= checkpoint {
				aliases = append(aliases, a)
			}
		}
		cp.Aliases = aliases
		out = append(out, cp)
	}
	return out
}

// Names returns the canonical names of all entities first seen at or before
// the checkpoint, in first-seen order.
func (r *Roster) Names(checkpoint int) []string {
	var out []string
	for _, e := range r.entities {
		if e.FirstSeen <= checkpoint {
			out = append(out, e.Canonical)
		}
	}
	return out
}
