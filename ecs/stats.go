package ecs

// StorageStats summarizes what a world currently stores.
type StorageStats struct {
	ArchetypeCount     int
	TotalEntityCount   int
	ResourceCount      int
	ComponentCount     int
	OutstandingBorrows int
	ArchetypeBreakdown []ArchetypeStats
	ResourceTypes      []string
}

// ArchetypeStats describes one archetype.
type ArchetypeStats struct {
	ID             uint32
	ComponentTypes []string
	EntityCount    int
	Rows           int
}

// CollectStats gathers storage statistics. Empty archetypes are skipped.
func (w *World) CollectStats() StorageStats {
	stats := StorageStats{
		ComponentCount:     w.registry.Len(),
		OutstandingBorrows: w.borrows.Outstanding(),
	}

	w.mu.RLock()
	for _, a := range w.archetypes {
		if a.count == 0 {
			continue
		}
		stats.ArchetypeCount++
		stats.TotalEntityCount += a.count
		stats.ArchetypeBreakdown = append(stats.ArchetypeBreakdown, ArchetypeStats{
			ID:             a.id,
			ComponentTypes: a.names(w.registry),
			EntityCount:    a.count,
			Rows:           len(a.entities),
		})
	}
	w.mu.RUnlock()

	for _, id := range w.Resources() {
		stats.ResourceCount++
		stats.ResourceTypes = append(stats.ResourceTypes, w.registry.Name(id))
	}
	return stats
}
