package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"abyssrun/internal/esi"
)

// relationRow flattens one mutator tuple for the snapshot.
type relationRow struct {
	Source    esi.TypeID `cbor:"src"`
	Mutator   esi.TypeID `cbor:"mut"`
	Resulting esi.TypeID `cbor:"res"`
}

type snapshotFile struct {
	Abyssal   []esi.TypeID                                      `cbor:"abyssal"`
	Items     map[esi.ItemID]esi.AssetItem                      `cbor:"items"`
	Names     map[esi.ItemID]string                             `cbor:"names"`
	Stations  map[esi.StationID]esi.Station                     `cbor:"stations"`
	Types     map[esi.TypeID]esi.ItemType                       `cbor:"types"`
	Groups    map[esi.MarketGroupID]esi.MarketGroup             `cbor:"groups"`
	Attrs     map[esi.DogmaAttributeID]esi.DogmaAttribute       `cbor:"attrs"`
	Dynamics  map[esi.ItemID]esi.DynamicItem                    `cbor:"dynamics"`
	Relations []relationRow                                     `cbor:"relations"`
	Ranges    map[esi.TypeID]map[esi.DogmaAttributeID]Range     `cbor:"ranges"`
}

// Save writes a best-effort snapshot atomically (temp file in the same
// directory, then rename). Unchanged stores are skipped.
func (s *Store) Save(path string) error {
	gen := s.gen.Load()
	if gen == s.savedGen.Load() {
		return nil
	}

	snap := s.buildSnapshot()
	data, err := cbor.Marshal(snap)
	if err != nil {
		return fmt.Errorf("store: encode snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: snapshot temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("store: write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store: close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store: rename snapshot: %w", err)
	}
	s.savedGen.Store(gen)
	return nil
}

func (s *Store) buildSnapshot() snapshotFile {
	v := s.View()

	s.mutMu.RLock()
	var relations []relationRow
	for src, byMut := range s.mut.forward {
		for mut, res := range byMut {
			relations = append(relations, relationRow{Source: src, Mutator: mut, Resulting: res})
		}
	}
	ranges := make(map[esi.TypeID]map[esi.DogmaAttributeID]Range, len(s.mut.ranges))
	for mut, byAttr := range s.mut.ranges {
		ranges[mut] = copyMap(byAttr)
	}
	s.mutMu.RUnlock()

	abyssal := make([]esi.TypeID, 0, len(s.abyssal))
	for id := range s.abyssal {
		abyssal = append(abyssal, id)
	}

	return snapshotFile{
		Abyssal:   abyssal,
		Items:     v.Items,
		Names:     v.Names,
		Stations:  v.Stations,
		Types:     v.Types,
		Groups:    v.Groups,
		Attrs:     v.Attrs,
		Dynamics:  v.Dynamics,
		Relations: relations,
		Ranges:    ranges,
	}
}

// Load reads a snapshot back into a fresh store, rebuilding the derived
// indexes (reverse name lookup, mutator relation maps).
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: read snapshot: %w", err)
	}
	var snap snapshotFile
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("store: decode snapshot: %w", err)
	}

	s := New(snap.Abyssal)
	for id, a := range snap.Items {
		s.items[id] = a
	}
	for id, n := range snap.Names {
		s.names[id] = n
	}
	for id, st := range snap.Stations {
		s.stations[id] = st
	}
	for id, t := range snap.Types {
		s.types[id] = t
	}
	for id, g := range snap.Groups {
		s.groups[id] = g
	}
	for id, a := range snap.Attrs {
		s.attrs[id] = a
		if a.Name != nil {
			s.attrsByName[*a.Name] = id
		}
	}
	for id, d := range snap.Dynamics {
		s.dynamics[id] = d
	}
	for _, rel := range snap.Relations {
		s.mut.Insert(rel.Source, rel.Mutator, rel.Resulting)
	}
	for mut, byAttr := range snap.Ranges {
		for attr, r := range byAttr {
			s.mut.SetRange(mut, attr, r)
		}
	}
	return s, nil
}
