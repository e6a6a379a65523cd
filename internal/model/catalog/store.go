package catalog

// Store exposes the selectable models to handlers.
type Store interface {
	List() []Model
	FindByID(id string) (Model, bool)
	Default() (Model, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Model
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied models.
func NewMemoryStore(items []Model) *MemoryStore {
	return &MemoryStore{items: append([]Model(nil), items...)}
}

// List returns the models in display order.
func (s *MemoryStore) List() []Model {
	return append([]Model(nil), s.items...)
}

// FindByID looks up a model by identifier.
func (s *MemoryStore) FindByID(id string) (Model, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Model{}, false
}

// Default returns the model flagged as default, falling back to the first entry.
func (s *MemoryStore) Default() (Model, bool) {
	for _, item := range s.items {
		if item.Default {
			return item, true
		}
	}
	if len(s.items) == 0 {
		return Model{}, false
	}
	return s.items[0], true
}
