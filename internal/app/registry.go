package app

import "slices"

// registry is an insertion-ordered map. It is confined to the session loop.
type registry[K comparable, V any] struct {
	items map[K]V
	order []K
}

func newRegistry[K comparable, V any]() *registry[K, V] {
	return &registry[K, V]{items: make(map[K]V)}
}

func (r *registry[K, V]) Get(k K) (V, bool) {
	v, ok := r.items[k]
	return v, ok
}

func (r *registry[K, V]) Has(k K) bool {
	_, ok := r.items[k]
	return ok
}

func (r *registry[K, V]) Set(k K, v V) {
	if _, ok := r.items[k]; !ok {
		r.order = append(r.order, k)
	}
	r.items[k] = v
}

func (r *registry[K, V]) Delete(k K) bool {
	if _, ok := r.items[k]; !ok {
		return false
	}
	delete(r.items, k)
	if i := slices.Index(r.order, k); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	return true
}

func (r *registry[K, V]) Len() int { return len(r.items) }

// Values returns a snapshot in insertion order.
func (r *registry[K, V]) Values() []V {
	out := make([]V, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.items[k])
	}
	return out
}
