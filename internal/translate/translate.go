// Package translate builds source→destination id maps for entities matched
// by a natural key (tenant id, role key, category name). Ids that cannot be
// matched are never guessed: they fall out of the map and are reported so a
// stage can log exactly what it dropped.
package translate

// Miss is a source entity whose natural key has no destination counterpart.
type Miss struct {
	Key      string
	SourceID string
}

// Duplicate is a natural key claimed by more than one destination entity.
// Translation still resolves (the last listed wins) but the choice is
// arbitrary, so the collision is surfaced to the operator.
type Duplicate struct {
	Key string
	IDs []string
}

// Map translates source ids to destination ids for one entity kind.
type Map struct {
	kind       string
	ids        map[string]string
	misses     []Miss
	duplicates []Duplicate
}

// Build pairs source and destination entities that share a natural key.
// key extracts the natural key and id the platform id; entities with an
// empty key or id are untranslatable and simply never match.
func Build[T any](kind string, source, dest []T, key, id func(T) string) *Map {
	m := &Map{
		kind: kind,
		ids:  make(map[string]string, len(source)),
	}

	destByKey := make(map[string]string, len(dest))
	dupIndex := make(map[string]int)
	for _, entity := range dest {
		k := key(entity)
		destID := id(entity)
		if k == "" || destID == "" {
			continue
		}
		if prev, taken := destByKey[k]; taken {
			if idx, seen := dupIndex[k]; seen {
				m.duplicates[idx].IDs = append(m.duplicates[idx].IDs, destID)
			} else {
				dupIndex[k] = len(m.duplicates)
				m.duplicates = append(m.duplicates, Duplicate{Key: k, IDs: []string{prev, destID}})
			}
		}
		destByKey[k] = destID
	}

	for _, entity := range source {
		sourceID := id(entity)
		if sourceID == "" {
			continue
		}
		k := key(entity)
		destID, ok := destByKey[k]
		if k == "" || !ok {
			m.misses = append(m.misses, Miss{Key: k, SourceID: sourceID})
			continue
		}
		m.ids[sourceID] = destID
	}

	return m
}

// Kind names the entity kind the map was built for.
func (m *Map) Kind() string { return m.kind }

// Len is the number of source ids with a destination counterpart.
func (m *Map) Len() int { return len(m.ids) }

// Lookup resolves one source id.
func (m *Map) Lookup(sourceID string) (string, bool) {
	destID, ok := m.ids[sourceID]
	return destID, ok
}

// Translate resolves a batch of source ids, preserving input order. Unknown
// ids are returned in dropped rather than passed through: an untranslated id
// sent to the destination would reference an entity that does not exist
// there.
func (m *Map) Translate(ids []string) (mapped, dropped []string) {
	for _, sourceID := range ids {
		if destID, ok := m.ids[sourceID]; ok {
			mapped = append(mapped, destID)
		} else {
			dropped = append(dropped, sourceID)
		}
	}
	return mapped, dropped
}

// Misses lists source entities that could not be paired, in source order.
func (m *Map) Misses() []Miss { return m.misses }

// Duplicates lists destination natural-key collisions, in destination order.
func (m *Map) Duplicates() []Duplicate { return m.duplicates }
