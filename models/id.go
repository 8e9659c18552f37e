package models

import "sync"

// A sequential id generator. Ids start at 1.
type SequentialIDGenerator struct {
	mutex       sync.Mutex
	currentID   int
	reusableIDs []int
}

// New returns a sequential id. Released ids are returned first, the most
// recently released one first, so that a seeded run always gives out the
// same ids.
func (g *SequentialIDGenerator) New() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if n := len(g.reusableIDs); n > 0 {
		id := g.reusableIDs[n-1]
		g.reusableIDs = g.reusableIDs[:n-1]
		return id
	}

	g.currentID++
	return g.currentID
}

// Reuse marks the given id as reusable.
func (g *SequentialIDGenerator) Reuse(id int) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.reusableIDs = append(g.reusableIDs, id)
}
