package phone

// DedupSet remembers canonical keys seen during one run.
// Not safe for concurrent use; the run loop owns it.
type DedupSet struct {
	seen  map[string]struct{}
	order []string
}

func NewDedupSet() *DedupSet {
	return &DedupSet{seen: map[string]struct{}{}}
}

// Admit reports whether key is seen for the first time, recording it if so.
func (d *DedupSet) Admit(key string) bool {
	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = struct{}{}
	d.order = append(d.order, key)
	return true
}

// Keys returns admitted keys in first-seen order.
func (d *DedupSet) Keys() []string {
	return append([]string(nil), d.order...)
}

func (d *DedupSet) Len() int { return len(d.order) }
