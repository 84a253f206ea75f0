package ledgerstore

import (
	"sync"
)

// SubscriberHub is a concurrency-safe observer registry shared by the store
// engines to fan out per-collection change notifications. Observers always
// receive the full current document set of the changed collection.
type SubscriberHub struct {
	mu        sync.RWMutex
	observers map[string]map[int]func([]Document)
	nextID    int
}

// NewSubscriberHub creates an empty hub.
func NewSubscriberHub() *SubscriberHub {
	return &SubscriberHub{
		observers: make(map[string]map[int]func([]Document)),
	}
}

// Subscribe registers an observer for one collection and returns its cancel function.
func (h *SubscriberHub) Subscribe(collection string, observer func([]Document)) CancelFunc {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.observers[collection] == nil {
		h.observers[collection] = make(map[int]func([]Document))
	}

	id := h.nextID
	h.nextID++
	h.observers[collection][id] = observer

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.observers[collection], id)
	}
}

// HasObservers reports whether any observer is registered for the collection.
// Engines use it to skip assembling notification payloads nobody listens to.
func (h *SubscriberHub) HasObservers(collection string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.observers[collection]) > 0
}

// Notify delivers the full current set of documents to every observer of the collection.
// Delivery is synchronous; observers must not block.
func (h *SubscriberHub) Notify(collection string, documents []Document) {
	h.mu.RLock()
	callbacks := make([]func([]Document), 0, len(h.observers[collection]))
	for _, observer := range h.observers[collection] {
		callbacks = append(callbacks, observer)
	}
	h.mu.RUnlock()

	for _, callback := range callbacks {
		callback(documents)
	}
}
