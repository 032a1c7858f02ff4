package snapshotstore

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/axiograph/axiograph/internal/entitystore"
	"github.com/axiograph/axiograph/internal/intern"
	"github.com/axiograph/axiograph/internal/metaplane"
	"github.com/axiograph/axiograph/internal/pathdb"
)

// ChunkPayload is one ImportChunks entry: a retrieval-evidence fragment
// attached to a source document.
type ChunkPayload struct {
	DocID string `json:"doc_id"`
	Text  string `json:"text"`
}

// ProposalPayload is one ImportProposals entry: a candidate fact the
// modal plane has not yet promoted, anchored to the chunks it was
// derived from (§3 invariant 4).
type ProposalPayload struct {
	ProposalID string   `json:"proposal_id"`
	Confidence float64  `json:"confidence"`
	ChunkIDs   []string `json:"chunk_ids"`
}

// EmbeddingPayload is one ImportEmbeddingsV1 entry: a vector attached to
// an existing chunk by doc id.
type EmbeddingPayload struct {
	DocID  string    `json:"doc_id"`
	Vector []float64 `json:"vector"`
}

const (
	attrDocID       = "doc_id"
	attrText        = "text"
	attrEmbeddingV1 = "embedding_v1"
)

// ApplyOverlay applies one WAL overlay op to db. Every op is idempotent:
// chunk and proposal entities are looked up by their natural key before
// creation, so replaying the same op twice finds the existing entity
// instead of creating a duplicate (§4.N "Idempotent overlays").
func ApplyOverlay(db *pathdb.DB, op OverlayOp) error {
	switch op.Kind {
	case OpImportChunks:
		var chunks []ChunkPayload
		if err := json.Unmarshal(op.Payload, &chunks); err != nil {
			return fmt.Errorf("decode ImportChunks payload: %w", err)
		}
		for _, c := range chunks {
			if _, err := upsertChunk(db, c); err != nil {
				return err
			}
		}
	case OpImportProposals:
		var proposals []ProposalPayload
		if err := json.Unmarshal(op.Payload, &proposals); err != nil {
			return fmt.Errorf("decode ImportProposals payload: %w", err)
		}
		for _, p := range proposals {
			if err := upsertProposal(db, p); err != nil {
				return err
			}
		}
	case OpImportEmbeddingsV1:
		var embeddings []EmbeddingPayload
		if err := json.Unmarshal(op.Payload, &embeddings); err != nil {
			return fmt.Errorf("decode ImportEmbeddingsV1 payload: %w", err)
		}
		for _, e := range embeddings {
			if err := upsertEmbedding(db, e); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown overlay op kind %q", op.Kind)
	}
	return nil
}

func findByAttr(db *pathdb.DB, key, value string) (entitystore.ID, bool) {
	keyID, ok := db.Interner.IDOf(key)
	if !ok {
		return 0, false
	}
	valID, ok := db.Interner.IDOf(value)
	if !ok {
		return 0, false
	}
	matches := db.Entities.EntitiesWithAttrValue(keyID, valID).ToSlice()
	if len(matches) == 0 {
		return 0, false
	}
	return entitystore.ID(matches[0]), true
}

// upsertChunk finds or creates the DocChunk entity for c, keyed on
// doc_id so re-running the op is a no-op.
func upsertChunk(db *pathdb.DB, c ChunkPayload) (entitystore.ID, error) {
	if existing, ok := findByAttr(db, attrDocID, c.DocID); ok {
		return existing, nil
	}
	chunkType := db.TypeID("DocChunk")
	attrs := map[intern.ID]intern.ID{
		db.Interner.Intern(attrDocID): db.Interner.Intern(c.DocID),
		db.Interner.Intern(attrText):  db.Interner.Intern(c.Text),
	}
	return db.Entities.Add(chunkType, attrs), nil
}

// upsertProposal finds or creates the proposal entity for p, wiring
// has_evidence_chunk edges to every referenced chunk. Re-running the op
// with the same proposal id is a no-op: the proposal entity already
// exists and relstore.Add is itself a no-op on a duplicate
// (source, relType, target) triple.
func upsertProposal(db *pathdb.DB, p ProposalPayload) error {
	proposalEnt, ok := findByAttr(db, metaplane.AttrProposalID, p.ProposalID)
	if !ok {
		proposalType := db.TypeID("Proposal")
		attrs := map[intern.ID]intern.ID{
			db.Interner.Intern(metaplane.AttrProposalID): db.Interner.Intern(p.ProposalID),
			db.Interner.Intern(metaplane.AttrProposalConf): db.Interner.Intern(
				strconv.FormatFloat(p.Confidence, 'g', -1, 64)),
		}
		proposalEnt = db.Entities.Add(proposalType, attrs)
	}

	evidenceRel := db.Interner.Intern(metaplane.EdgeHasEvidenceChunk)
	for _, chunkDocID := range p.ChunkIDs {
		chunkEnt, ok := findByAttr(db, attrDocID, chunkDocID)
		if !ok {
			return fmt.Errorf("proposal %s references unknown chunk %s", p.ProposalID, chunkDocID)
		}
		if _, err := db.Relations.Add(proposalEnt, evidenceRel, chunkEnt, 1.0, nil); err != nil {
			return fmt.Errorf("link proposal %s to chunk %s: %w", p.ProposalID, chunkDocID, err)
		}
	}
	return nil
}

// upsertEmbedding attaches a JSON-encoded vector to the chunk identified
// by e.DocID. Re-running with the same vector is a no-op since
// UpsertAttr only rewrites when the value actually changes.
func upsertEmbedding(db *pathdb.DB, e EmbeddingPayload) error {
	chunkEnt, ok := findByAttr(db, attrDocID, e.DocID)
	if !ok {
		return fmt.Errorf("embedding references unknown chunk %s", e.DocID)
	}
	vecBytes, err := json.Marshal(e.Vector)
	if err != nil {
		return fmt.Errorf("encode embedding vector for %s: %w", e.DocID, err)
	}
	embKey := db.Interner.Intern(attrEmbeddingV1)
	embVal := db.Interner.Intern(string(vecBytes))
	return db.Entities.UpsertAttr(chunkEnt, embKey, embVal)
}
