package scopez

// remember makes an open record reachable by id.
func (r *Registry) remember(rec *Record) {
	r.open.Store(rec.id, rec)
	r.openCount.Add(1)
}

// forget drops a closed record from the open set.
func (r *Registry) forget(rec *Record) {
	if _, loaded := r.open.LoadAndDelete(rec.id); loaded {
		r.openCount.Add(-1)
	}
}

// Lookup returns the open record with the given id.
func (r *Registry) Lookup(id string) (*Record, bool) {
	if id == "" {
		return nil, false
	}
	v, ok := r.open.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Record), true //nolint:forcetypeassert // Only *Record is stored
}

// OpenScopes returns the number of scopes opened on this registry that have
// not closed yet.
func (r *Registry) OpenScopes() int {
	return int(r.openCount.Load())
}
