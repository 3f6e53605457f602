package chat

// recentSet remembers recently seen message ids in arrival order. Once it
// grows past max it keeps only the newest keep ids, so replays older than
// the window are no longer caught here.
type recentSet struct {
	max   int
	keep  int
	order []string
	seen  map[string]struct{}
}

func newRecentSet(max, keep int) *recentSet {
	if max <= 0 {
		max = 1000
	}
	if keep <= 0 || keep > max {
		keep = max / 2
	}
	return &recentSet{max: max, keep: keep, seen: make(map[string]struct{})}
}

// Add records id and reports whether it was new.
func (r *recentSet) Add(id string) bool {
	if id == "" {
		return true
	}
	if _, ok := r.seen[id]; ok {
		return false
	}
	r.seen[id] = struct{}{}
	r.order = append(r.order, id)
	if len(r.order) > r.max {
		drop := r.order[:len(r.order)-r.keep]
		for _, old := range drop {
			delete(r.seen, old)
		}
		r.order = append([]string(nil), r.order[len(r.order)-r.keep:]...)
	}
	return true
}
