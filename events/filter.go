package events

// Predicate decides whether a subscriber wants to receive an event.
// Arbitrary closures are accepted everywhere a Predicate is, but the
// constructors below cover the common criteria without hand-written
// functions.
type Predicate func(Event) bool

// BySource accepts events triggered by the given agent.
func BySource(id int64) Predicate {
	return func(e Event) bool {
		return e.SourceAgentID != nil && *e.SourceAgentID == id
	}
}

// ByCircle accepts events scoped to the given circle.
func ByCircle(id int64) Predicate {
	return func(e Event) bool {
		return e.CircleID != nil && *e.CircleID == id
	}
}

// ByProject accepts events scoped to the given project.
func ByProject(id int64) Predicate {
	return func(e Event) bool {
		return e.ProjectID != nil && *e.ProjectID == id
	}
}

// ByKinds accepts events whose kind is in the given set.
func ByKinds(kinds ...Kind) Predicate {
	set := make(map[Kind]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return func(e Event) bool {
		_, ok := set[e.Kind]
		return ok
	}
}

// And accepts events that every given predicate accepts.
func And(predicates ...Predicate) Predicate {
	return func(e Event) bool {
		for _, p := range predicates {
			if p != nil && !p(e) {
				return false
			}
		}
		return true
	}
}
