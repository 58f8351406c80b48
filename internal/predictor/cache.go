package predictor

// Cache maps job ids to predicted pay. It is a plain in-memory structure
// rebuilt from scratch each process start; entries are removed explicitly
// when the underlying record changes or the model is retrained. It performs
// no locking of its own; the Predictor is the single writer and guards it.
type Cache struct {
	entries map[int64]float64
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[int64]float64)}
}

// Get returns the cached predictions for the ids present in the cache.
func (c *Cache) Get(ids []int64) map[int64]float64 {
	out := make(map[int64]float64, len(ids))
	for _, id := range ids {
		if v, ok := c.entries[id]; ok {
			out[id] = v
		}
	}
	return out
}

// Has reports whether id has a cached prediction.
func (c *Cache) Has(id int64) bool {
	_, ok := c.entries[id]
	return ok
}

// Put inserts or overwrites the prediction for id.
func (c *Cache) Put(id int64, value float64) {
	c.entries[id] = value
}

// Invalidate removes the entries for the given ids. Unknown ids are ignored.
func (c *Cache) Invalidate(ids ...int64) {
	for _, id := range ids {
		delete(c.entries, id)
	}
}

// InvalidateAll empties the cache.
func (c *Cache) InvalidateAll() {
	clear(c.entries)
}

// Len returns the number of cached predictions.
func (c *Cache) Len() int {
	return len(c.entries)
}
