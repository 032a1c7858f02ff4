package pathdb

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"sort"

	"github.com/axiograph/axiograph/internal/entitystore"
	"github.com/axiograph/axiograph/internal/equivstore"
	"github.com/axiograph/axiograph/internal/intern"
	"github.com/axiograph/axiograph/internal/relstore"
)

// magic identifies an .axpd file; version allows the codec to evolve while
// staying backward compatible (§4.E "binary, self-describing,
// backward-compatible layout").
var magic = [4]byte{'A', 'X', 'P', 'D'}

const version uint32 = 1

// sectionKind enumerates the fixed section order. New kinds must be
// appended, never inserted, so version 1 readers can skip unknown trailing
// sections instead of failing.
type sectionKind uint32

const (
	sectionInterner sectionKind = iota
	sectionEntities
	sectionAttrs
	sectionRelations
	sectionEquivalences
	sectionVirtualTypes
)

type attrColumnWire struct {
	Key   uint32           `json:"key"`
	Cells []attrCellWire   `json:"cells"`
}

type attrCellWire struct {
	Entity uint32 `json:"e"`
	Value  uint32 `json:"v"`
}

type entitiesWire struct {
	BaseTypes []uint32 `json:"base_types"`
}

type relationsWire struct {
	Rows []relationRowWire `json:"rows"`
}

type relationRowWire struct {
	Source     uint32            `json:"s"`
	RelType    uint32            `json:"r"`
	Target     uint32            `json:"t"`
	Confidence float64           `json:"c"`
	Attrs      map[uint32]uint32 `json:"a,omitempty"`
}

type equivalencesWire struct {
	Pairs []equivPairWire `json:"pairs"`
}

type equivPairWire struct {
	A   uint32 `json:"a"`
	B   uint32 `json:"b"`
	Tag uint32 `json:"tag"`
}

type virtualTypesWire struct {
	Tags map[uint32][]uint32 `json:"tags"`
}

// Encode serializes db into the .axpd binary layout: a 4-byte magic, a
// version, then one length+checksum-framed section per table.
func Encode(db *DB) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(magic[:])
	_ = binary.Write(&buf, binary.BigEndian, version)

	writeSection := func(kind sectionKind, payload any) error {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("pathdb: encode section %d: %w", kind, err)
		}
		_ = binary.Write(&buf, binary.BigEndian, uint32(kind))
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(body)))
		_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(body))
		buf.Write(body)
		return nil
	}

	if err := writeSection(sectionInterner, db.Interner.All()); err != nil {
		return nil, err
	}
	if err := writeSection(sectionEntities, entitiesWire{BaseTypes: toUint32s(db.Entities.BaseTypes())}); err != nil {
		return nil, err
	}

	var columns []attrColumnWire
	for _, key := range db.Entities.AttrKeys() {
		col := db.Entities.Column(key)
		cells := make([]attrCellWire, 0, len(col))
		for e, v := range col {
			cells = append(cells, attrCellWire{Entity: uint32(e), Value: uint32(v)})
		}
		sort.Slice(cells, func(i, j int) bool { return cells[i].Entity < cells[j].Entity })
		columns = append(columns, attrColumnWire{Key: uint32(key), Cells: cells})
	}
	sort.Slice(columns, func(i, j int) bool { return columns[i].Key < columns[j].Key })
	if err := writeSection(sectionAttrs, columns); err != nil {
		return nil, err
	}

	var rows []relationRowWire
	for _, r := range db.Relations.Rows() {
		attrs := make(map[uint32]uint32, len(r.Attrs))
		for k, v := range r.Attrs {
			attrs[uint32(k)] = uint32(v)
		}
		rows = append(rows, relationRowWire{
			Source: uint32(r.Source), RelType: uint32(r.RelType), Target: uint32(r.Target),
			Confidence: r.Confidence, Attrs: attrs,
		})
	}
	if err := writeSection(sectionRelations, relationsWire{Rows: rows}); err != nil {
		return nil, err
	}

	var pairs []equivPairWire
	for _, p := range db.Equiv.Pairs() {
		pairs = append(pairs, equivPairWire{A: uint32(p.A), B: uint32(p.B), Tag: uint32(p.Tag)})
	}
	if err := writeSection(sectionEquivalences, equivalencesWire{Pairs: pairs}); err != nil {
		return nil, err
	}

	vt := make(map[uint32][]uint32)
	for _, tag := range db.Entities.VirtualTags() {
		vt[uint32(tag)] = db.Entities.VirtualType(tag).ToSlice()
	}
	if err := writeSection(sectionVirtualTypes, virtualTypesWire{Tags: vt}); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses the .axpd layout produced by Encode, verifying the magic,
// version, and every section checksum before returning a usable DB.
func Decode(data []byte) (*DB, error) {
	r := bytes.NewReader(data)
	var gotMagic [4]byte
	if _, err := io.ReadFull(r, gotMagic[:]); err != nil || gotMagic != magic {
		return nil, fmt.Errorf("pathdb: bad magic")
	}
	var gotVersion uint32
	if err := binary.Read(r, binary.BigEndian, &gotVersion); err != nil {
		return nil, fmt.Errorf("pathdb: read version: %w", err)
	}
	if gotVersion > version {
		return nil, fmt.Errorf("pathdb: snapshot version %d newer than supported %d", gotVersion, version)
	}

	var strs []string
	var ent entitiesWire
	var columns []attrColumnWire
	var rels relationsWire
	var equiv equivalencesWire
	var vt virtualTypesWire

	for r.Len() > 0 {
		var kindU, length uint32
		var checksum uint32
		if err := binary.Read(r, binary.BigEndian, &kindU); err != nil {
			return nil, fmt.Errorf("pathdb: read section kind: %w", err)
		}
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return nil, fmt.Errorf("pathdb: read section length: %w", err)
		}
		if err := binary.Read(r, binary.BigEndian, &checksum); err != nil {
			return nil, fmt.Errorf("pathdb: read section checksum: %w", err)
		}
		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("pathdb: short read on section %d: %w", kindU, err)
		}
		if crc32.ChecksumIEEE(body) != checksum {
			return nil, fmt.Errorf("pathdb: checksum mismatch on section %d", kindU)
		}

		switch sectionKind(kindU) {
		case sectionInterner:
			if err := json.Unmarshal(body, &strs); err != nil {
				return nil, err
			}
		case sectionEntities:
			if err := json.Unmarshal(body, &ent); err != nil {
				return nil, err
			}
		case sectionAttrs:
			if err := json.Unmarshal(body, &columns); err != nil {
				return nil, err
			}
		case sectionRelations:
			if err := json.Unmarshal(body, &rels); err != nil {
				return nil, err
			}
		case sectionEquivalences:
			if err := json.Unmarshal(body, &equiv); err != nil {
				return nil, err
			}
		case sectionVirtualTypes:
			if err := json.Unmarshal(body, &vt); err != nil {
				return nil, err
			}
		default:
			// Unknown trailing section from a newer writer: skip, per the
			// backward-compatible layout promise.
		}
	}

	db := &DB{Interner: intern.LoadAll(strs)}

	baseTypes := make([]intern.ID, len(ent.BaseTypes))
	for i, t := range ent.BaseTypes {
		baseTypes[i] = intern.ID(t)
	}
	attrs := make(map[intern.ID]map[entitystore.ID]intern.ID, len(columns))
	for _, col := range columns {
		m := make(map[entitystore.ID]intern.ID, len(col.Cells))
		for _, c := range col.Cells {
			m[entitystore.ID(c.Entity)] = intern.ID(c.Value)
		}
		attrs[intern.ID(col.Key)] = m
	}
	virtual := make(map[intern.ID][]uint32, len(vt.Tags))
	for tag, ids := range vt.Tags {
		virtual[intern.ID(tag)] = ids
	}
	db.Entities = entitystore.LoadSnapshot(baseTypes, attrs, virtual)

	rows := make([]relstore.Row, len(rels.Rows))
	for i, rr := range rels.Rows {
		var a map[intern.ID]intern.ID
		if len(rr.Attrs) > 0 {
			a = make(map[intern.ID]intern.ID, len(rr.Attrs))
			for k, v := range rr.Attrs {
				a[intern.ID(k)] = intern.ID(v)
			}
		}
		rows[i] = relstore.Row{
			Source: entitystore.ID(rr.Source), RelType: intern.ID(rr.RelType), Target: entitystore.ID(rr.Target),
			Confidence: rr.Confidence, Attrs: a,
		}
	}
	relStore, err := relstore.LoadSnapshot(rows)
	if err != nil {
		return nil, fmt.Errorf("pathdb: rebuild relations: %w", err)
	}
	db.Relations = relStore

	pairs := make([]equivstore.Pair, len(equiv.Pairs))
	for i, p := range equiv.Pairs {
		pairs[i] = equivstore.Pair{A: entitystore.ID(p.A), B: entitystore.ID(p.B), Tag: intern.ID(p.Tag)}
	}
	db.Equiv = equivstore.LoadSnapshot(pairs)

	return db, nil
}

func toUint32s(ids []intern.ID) []uint32 {
	out := make([]uint32, len(ids))
	for i, id := range ids {
		out[i] = uint32(id)
	}
	return out
}
