package session

import (
	"sync"

	"github.com/dgnsrekt/shotpost/internal/types"
)

// tabRegistry keeps page targets in first-seen order with their last known
// metadata, plus the active handle.
type tabRegistry struct {
	mu     sync.RWMutex
	order  []TabHandle
	tabs   map[TabHandle]types.TabInfo
	active TabHandle
}

func newTabRegistry() *tabRegistry {
	return &tabRegistry{tabs: make(map[TabHandle]types.TabInfo)}
}

// sync replaces the known set with live, keeping the order of tabs already
// seen and appending new ones. It returns the handles that disappeared.
func (r *tabRegistry) sync(live []types.TabInfo) []TabHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	present := make(map[TabHandle]types.TabInfo, len(live))
	for _, info := range live {
		present[TabHandle(info.TargetID)] = info
	}

	var gone []TabHandle
	kept := r.order[:0]
	for _, h := range r.order {
		if info, ok := present[h]; ok {
			kept = append(kept, h)
			r.tabs[h] = info
			delete(present, h)
			continue
		}
		gone = append(gone, h)
		delete(r.tabs, h)
	}
	r.order = kept
	for _, info := range live {
		h := TabHandle(info.TargetID)
		if _, ok := present[h]; !ok {
			continue
		}
		r.order = append(r.order, h)
		r.tabs[h] = info
		delete(present, h)
	}
	if _, ok := r.tabs[r.active]; !ok {
		r.active = ""
	}
	return gone
}

func (r *tabRegistry) add(info types.TabInfo) TabHandle {
	h := TabHandle(info.TargetID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tabs[h]; !ok {
		r.order = append(r.order, h)
	}
	r.tabs[h] = info
	return h
}

func (r *tabRegistry) remove(h TabHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tabs[h]; !ok {
		return
	}
	delete(r.tabs, h)
	for i, o := range r.order {
		if o == h {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.active == h {
		r.active = ""
	}
}

func (r *tabRegistry) get(h TabHandle) (types.TabInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.tabs[h]
	return info, ok
}

func (r *tabRegistry) handles() []TabHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]TabHandle(nil), r.order...)
}

func (r *tabRegistry) infos() []types.TabInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.TabInfo, 0, len(r.order))
	for _, h := range r.order {
		out = append(out, r.tabs[h])
	}
	return out
}

func (r *tabRegistry) setActive(h TabHandle) {
	r.mu.Lock()
	r.active = h
	r.mu.Unlock()
}

func (r *tabRegistry) getActive() TabHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

func (r *tabRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
