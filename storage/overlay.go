package storage

import "sync"

// Overlay stages writes on top of a base database. Reads consult the staged
// set first and fall through to the base store. Nothing reaches the base until
// Commit, which is how each marketplace operation gets its all-or-nothing
// semantics: the operation runs against an overlay and the overlay is only
// committed when the operation returns without error.
type Overlay struct {
	mu      sync.RWMutex
	base    Database
	writes  map[string][]byte
	deletes map[string]struct{}
}

// NewOverlay creates an overlay staging writes against base.
func NewOverlay(base Database) *Overlay {
	return &Overlay{
		base:    base,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := string(key)
	delete(o.deletes, k)
	o.writes[k] = append([]byte(nil), value...)
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	k := string(key)
	if _, gone := o.deletes[k]; gone {
		return nil, ErrKeyNotFound
	}
	if value, ok := o.writes[k]; ok {
		return append([]byte(nil), value...), nil
	}
	return o.base.Get(key)
}

func (o *Overlay) Delete(key []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := string(key)
	delete(o.writes, k)
	o.deletes[k] = struct{}{}
	return nil
}

// Close satisfies the Database interface; the base store stays open.
func (o *Overlay) Close() {}

// Commit flushes the staged writes and deletes to the base store and resets
// the overlay.
func (o *Overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for k, v := range o.writes {
		if err := o.base.Put([]byte(k), v); err != nil {
			return err
		}
	}
	for k := range o.deletes {
		if err := o.base.Delete([]byte(k)); err != nil {
			return err
		}
	}
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
	return nil
}

// Discard drops all staged mutations without touching the base store.
func (o *Overlay) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
}
