package alerts

// DedupSet records entity names already emitted within one batch.
type DedupSet struct {
	seen map[string]struct{}
}

func NewDedupSet() *DedupSet {
	return &DedupSet{seen: map[string]struct{}{}}
}

// Add reports whether name was new. A false return means the entity was
// already emitted in this batch and must be dropped.
func (d *DedupSet) Add(name string) bool {
	if _, ok := d.seen[name]; ok {
		return false
	}
	d.seen[name] = struct{}{}
	return true
}

func (d *DedupSet) Len() int { return len(d.seen) }
