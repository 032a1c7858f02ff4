// Package snapshotstore implements the filesystem-backed accepted plane
// and PathDB write-ahead log (§4.N): content-addressed module blobs,
// append-only manifests, and a rebuildable-or-checkpointed PathDB.
package snapshotstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/axiograph/axiograph/internal/axiimport"
	"github.com/axiograph/axiograph/internal/digest"
	"github.com/axiograph/axiograph/internal/eventlog"
	"github.com/axiograph/axiograph/internal/pathdb"
)

// syncTracer is the OTel tracer for spans around cross-store object sync.
var syncTracer = otel.Tracer("github.com/axiograph/axiograph/snapshotstore")

var syncMetrics struct {
	retryCount metric.Int64Counter
	waitMs     metric.Float64Histogram
}

func init() {
	m := otel.Meter("github.com/axiograph/axiograph/snapshotstore")
	syncMetrics.retryCount, _ = m.Int64Counter("axiograph.sync.retry_count",
		metric.WithDescription("object copies retried due to a transient filesystem error"),
		metric.WithUnit("{retry}"),
	)
	syncMetrics.waitMs, _ = m.Float64Histogram("axiograph.sync.copy_wait_ms",
		metric.WithDescription("time spent copying one content-addressed object, including retries"),
		metric.WithUnit("ms"),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Store is the accepted-plane + PathDB WAL root directory described in
// §4.N. All ids are content-derived; there is no monotonic counter.
type Store struct {
	root string
}

// Open binds a Store to root, creating the directory layout if absent.
func Open(root string) (*Store, error) {
	dirs := []string{
		root,
		filepath.Join(root, "modules"),
		filepath.Join(root, "snapshots"),
		filepath.Join(root, "pathdb", "snapshots"),
		filepath.Join(root, "pathdb", "blobs"),
		filepath.Join(root, "pathdb", "checkpoints"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("snapshotstore: mkdir %s: %w", d, err)
		}
	}
	return &Store{root: root}, nil
}

func (s *Store) acceptedLog() *eventlog.Log { return eventlog.Open(filepath.Join(s.root, "accepted_plane.log.jsonl")) }
func (s *Store) acceptedHead() string       { return filepath.Join(s.root, "HEAD") }
func (s *Store) walLog() *eventlog.Log {
	return eventlog.Open(filepath.Join(s.root, "pathdb", "pathdb_wal.log.jsonl"))
}
func (s *Store) walHead() string { return filepath.Join(s.root, "pathdb", "HEAD") }

// AcceptedEvent is one line of accepted_plane.log.jsonl.
type AcceptedEvent struct {
	SnapshotID string    `json:"snapshot_id"`
	ModuleName string    `json:"module_name"`
	Digest     string    `json:"digest"`
	CreatedAt  time.Time `json:"created_at"`
}

// Manifest is the accepted-plane manifest written to snapshots/<id>.json.
type Manifest struct {
	ModuleName    string `json:"module_name"`
	ModuleDigest  string `json:"module_digest"`
}

// Promote parses and typechecks a canonical module, stores its blob and
// manifest content-addressed, appends a log event, and advances HEAD
// (§4.N "Promote").
func (s *Store) Promote(canonicalText string) (string, error) {
	mod, err := axiimport.Parse(canonicalText)
	if err != nil {
		return "", fmt.Errorf("snapshotstore: promote: parse: %w", err)
	}
	db := pathdb.New()
	if err := axiimport.Import(db, mod); err != nil {
		return "", fmt.Errorf("snapshotstore: promote: typecheck: %w", err)
	}

	moduleDigest := digest.OfString(canonicalText)
	blobPath := filepath.Join(s.root, "modules", mod.Name, sanitizeDigest(moduleDigest)+".axi")
	if err := writeIfAbsent(blobPath, []byte(canonicalText)); err != nil {
		return "", fmt.Errorf("snapshotstore: promote: write module blob: %w", err)
	}

	manifest := Manifest{ModuleName: mod.Name, ModuleDigest: moduleDigest}
	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("snapshotstore: promote: marshal manifest: %w", err)
	}
	snapshotID := digest.Of(manifestBytes)
	manifestPath := filepath.Join(s.root, "snapshots", sanitizeDigest(snapshotID)+".json")
	if err := writeIfAbsent(manifestPath, manifestBytes); err != nil {
		return "", fmt.Errorf("snapshotstore: promote: write manifest: %w", err)
	}

	if err := s.acceptedLog().Append(AcceptedEvent{
		SnapshotID: snapshotID, ModuleName: mod.Name, Digest: moduleDigest, CreatedAt: time.Now(),
	}); err != nil {
		return "", fmt.Errorf("snapshotstore: promote: append log: %w", err)
	}
	if err := eventlog.WriteHeadAtomic(s.acceptedHead(), snapshotID); err != nil {
		return "", fmt.Errorf("snapshotstore: promote: advance HEAD: %w", err)
	}
	return snapshotID, nil
}

// OverlayOp is one PathDB-commit overlay operation (§4.N "apply overlay
// ops"). Kind selects ImportChunks, ImportProposals, or
// ImportEmbeddingsV1; Payload is the op's JSON body, interpreted by
// ApplyOverlay.
type OverlayOp struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

const (
	OpImportChunks       = "ImportChunks"
	OpImportProposals    = "ImportProposals"
	OpImportEmbeddingsV1 = "ImportEmbeddingsV1"
)

// WALManifest is the manifest written for one PathDB-commit.
type WALManifest struct {
	AcceptedSnapshotID string      `json:"accepted_snapshot_id"`
	PreviousSnapshotID string      `json:"previous_snapshot_id,omitempty"`
	Ops                []OverlayOp `json:"ops"`
	Message            string      `json:"message"`
	CreatedAt          time.Time   `json:"created_at"`
}

// WALEvent is one line of pathdb_wal.log.jsonl.
type WALEvent struct {
	PathDBSnapshotID string    `json:"pathdb_snapshot_id"`
	ManifestDigest   string    `json:"manifest_digest"`
	CreatedAt        time.Time `json:"created_at"`
}

// Commit imports acceptedSnapshotID into a fresh PathDB, applies ops one
// at a time (failing fast and writing nothing on the first error, per
// §5's backpressure rule), writes the manifest and op blobs, appends the
// log, and advances the WAL HEAD.
func (s *Store) Commit(acceptedSnapshotID string, ops []OverlayOp, message string) (string, *pathdb.DB, error) {
	manifest, err := s.readAcceptedManifest(acceptedSnapshotID)
	if err != nil {
		return "", nil, fmt.Errorf("snapshotstore: commit: %w", err)
	}
	blobPath := filepath.Join(s.root, "modules", manifest.ModuleName, sanitizeDigest(manifest.ModuleDigest)+".axi")
	text, err := os.ReadFile(blobPath)
	if err != nil {
		return "", nil, fmt.Errorf("snapshotstore: commit: read module blob: %w", err)
	}
	mod, err := axiimport.Parse(string(text))
	if err != nil {
		return "", nil, fmt.Errorf("snapshotstore: commit: reparse module: %w", err)
	}
	db := pathdb.New()
	if err := axiimport.Import(db, mod); err != nil {
		return "", nil, fmt.Errorf("snapshotstore: commit: typecheck: %w", err)
	}

	for i, op := range ops {
		if err := ApplyOverlay(db, op); err != nil {
			return "", nil, fmt.Errorf("snapshotstore: commit: op %d (%s): %w", i, op.Kind, err)
		}
	}

	previous, _ := eventlog.ReadHead(s.walHead())
	walManifest := WALManifest{
		AcceptedSnapshotID: acceptedSnapshotID, PreviousSnapshotID: previous,
		Ops: ops, Message: message, CreatedAt: time.Now(),
	}
	manifestBytes, err := json.Marshal(walManifest)
	if err != nil {
		return "", nil, fmt.Errorf("snapshotstore: commit: marshal manifest: %w", err)
	}
	pathdbSnapshotID := digest.Of(manifestBytes)
	manifestPath := filepath.Join(s.root, "pathdb", "snapshots", sanitizeDigest(pathdbSnapshotID)+".json")
	if err := writeIfAbsent(manifestPath, manifestBytes); err != nil {
		return "", nil, fmt.Errorf("snapshotstore: commit: write manifest: %w", err)
	}

	if err := s.walLog().Append(WALEvent{
		PathDBSnapshotID: pathdbSnapshotID, ManifestDigest: digest.Of(manifestBytes), CreatedAt: time.Now(),
	}); err != nil {
		return "", nil, fmt.Errorf("snapshotstore: commit: append log: %w", err)
	}
	if err := eventlog.WriteHeadAtomic(s.walHead(), pathdbSnapshotID); err != nil {
		return "", nil, fmt.Errorf("snapshotstore: commit: advance HEAD: %w", err)
	}
	return pathdbSnapshotID, db, nil
}

// Checkpoint materializes db as a .axpd blob for pathdbSnapshotID, so a
// future Build can decode it directly instead of replaying from scratch.
func (s *Store) Checkpoint(pathdbSnapshotID string, db *pathdb.DB) error {
	data, err := pathdb.Encode(db)
	if err != nil {
		return fmt.Errorf("snapshotstore: checkpoint: encode: %w", err)
	}
	path := filepath.Join(s.root, "pathdb", "checkpoints", sanitizeDigest(pathdbSnapshotID)+".axpd")
	return writeIfAbsent(path, data)
}

// WALHead returns the PathDB snapshot id the WAL HEAD pointer currently
// resolves to, erroring if no commit has happened yet.
func (s *Store) WALHead() (string, error) {
	head, err := eventlog.ReadHead(s.walHead())
	if err != nil {
		return "", fmt.Errorf("snapshotstore: read HEAD: %w", err)
	}
	if head == "" {
		return "", fmt.Errorf("snapshotstore: no PathDB HEAD set yet")
	}
	return head, nil
}

// Build resolves a PathDB snapshot by id ("head" resolves through the WAL
// HEAD pointer): if a checkpoint exists and rebuild is false, it decodes
// directly; otherwise it re-imports the accepted module and replays ops
// deterministically (§4.N "PathDB-build").
func (s *Store) Build(idOrHead string, rebuild bool) (*pathdb.DB, error) {
	id := idOrHead
	if id == "head" || id == "" {
		head, err := s.WALHead()
		if err != nil {
			return nil, fmt.Errorf("snapshotstore: build: %w", err)
		}
		id = head
	}

	checkpointPath := filepath.Join(s.root, "pathdb", "checkpoints", sanitizeDigest(id)+".axpd")
	if !rebuild {
		if data, err := os.ReadFile(checkpointPath); err == nil {
			db, err := pathdb.Decode(data)
			if err != nil {
				return nil, fmt.Errorf("snapshotstore: build: decode checkpoint: %w", err)
			}
			return db, nil
		}
	}

	manifestPath := filepath.Join(s.root, "pathdb", "snapshots", sanitizeDigest(id)+".json")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("snapshotstore: build: read WAL manifest: %w", err)
	}
	var manifest WALManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("snapshotstore: build: parse WAL manifest: %w", err)
	}

	accManifest, err := s.readAcceptedManifest(manifest.AcceptedSnapshotID)
	if err != nil {
		return nil, fmt.Errorf("snapshotstore: build: %w", err)
	}
	blobPath := filepath.Join(s.root, "modules", accManifest.ModuleName, sanitizeDigest(accManifest.ModuleDigest)+".axi")
	text, err := os.ReadFile(blobPath)
	if err != nil {
		return nil, fmt.Errorf("snapshotstore: build: read module blob: %w", err)
	}
	mod, err := axiimport.Parse(string(text))
	if err != nil {
		return nil, fmt.Errorf("snapshotstore: build: reparse module: %w", err)
	}
	db := pathdb.New()
	if err := axiimport.Import(db, mod); err != nil {
		return nil, fmt.Errorf("snapshotstore: build: typecheck: %w", err)
	}
	for i, op := range manifest.Ops {
		if err := ApplyOverlay(db, op); err != nil {
			return nil, fmt.Errorf("snapshotstore: build: replay op %d (%s): %w", i, op.Kind, err)
		}
	}
	return db, nil
}

// ListAccepted returns accepted-plane log events, most recent first,
// truncated to limit (0 means unlimited).
func (s *Store) ListAccepted(limit int) ([]AcceptedEvent, error) {
	events, err := eventlog.ReadAll[AcceptedEvent](s.acceptedLog())
	if err != nil {
		return nil, fmt.Errorf("snapshotstore: list accepted: %w", err)
	}
	return tailReversed(events, limit), nil
}

// ListPathDB returns PathDB WAL log events, most recent first, truncated
// to limit (0 means unlimited).
func (s *Store) ListPathDB(limit int) ([]WALEvent, error) {
	events, err := eventlog.ReadAll[WALEvent](s.walLog())
	if err != nil {
		return nil, fmt.Errorf("snapshotstore: list pathdb: %w", err)
	}
	return tailReversed(events, limit), nil
}

// tailReversed returns the last limit elements of events in reverse
// order (newest first); limit <= 0 returns every element reversed.
func tailReversed[T any](events []T, limit int) []T {
	if limit > 0 && limit < len(events) {
		events = events[len(events)-limit:]
	}
	out := make([]T, len(events))
	for i, e := range events {
		out[len(events)-1-i] = e
	}
	return out
}

// CanonicalText resolves the canonical module text a PathDB snapshot was
// built from, for callers (e.g. httpapi) that need to anchor a
// certificate to the same content digest Promote computed.
func (s *Store) CanonicalText(pathdbSnapshotID string) (string, error) {
	manifestPath := filepath.Join(s.root, "pathdb", "snapshots", sanitizeDigest(pathdbSnapshotID)+".json")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return "", fmt.Errorf("snapshotstore: canonical text: read WAL manifest: %w", err)
	}
	var manifest WALManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return "", fmt.Errorf("snapshotstore: canonical text: parse WAL manifest: %w", err)
	}
	accManifest, err := s.readAcceptedManifest(manifest.AcceptedSnapshotID)
	if err != nil {
		return "", fmt.Errorf("snapshotstore: canonical text: %w", err)
	}
	blobPath := filepath.Join(s.root, "modules", accManifest.ModuleName, sanitizeDigest(accManifest.ModuleDigest)+".axi")
	text, err := os.ReadFile(blobPath)
	if err != nil {
		return "", fmt.Errorf("snapshotstore: canonical text: read module blob: %w", err)
	}
	return string(text), nil
}

func (s *Store) readAcceptedManifest(snapshotID string) (Manifest, error) {
	path := filepath.Join(s.root, "snapshots", sanitizeDigest(snapshotID)+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read accepted manifest %s: %w", snapshotID, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse accepted manifest %s: %w", snapshotID, err)
	}
	return m, nil
}

// Sync copies every immutable object present in `from` but missing from
// `to`, never overwriting an existing content-addressed object, and
// optionally advances to's HEAD pointers to match from's (§4.N "Sync").
// Copies fan out concurrently via errgroup, each retried with an
// exponential backoff in case of a transient filesystem error (e.g. a
// network mount hiccup).
func Sync(ctx context.Context, from, to *Store, updateHeads bool) error {
	dirs := []string{
		filepath.Join("modules"),
		filepath.Join("snapshots"),
		filepath.Join("pathdb", "snapshots"),
		filepath.Join("pathdb", "blobs"),
		filepath.Join("pathdb", "checkpoints"),
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, rel := range dirs {
		rel := rel
		g.Go(func() error { return syncDir(ctx, filepath.Join(from.root, rel), filepath.Join(to.root, rel)) })
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("snapshotstore: sync: %w", err)
	}

	if updateHeads {
		if err := syncHead(from.acceptedHead(), to.acceptedHead()); err != nil {
			return err
		}
		if err := syncHead(from.walHead(), to.walHead()); err != nil {
			return err
		}
	}
	return nil
}

// Watch notifies onChange whenever the PathDB WAL HEAD pointer moves,
// debouncing rapid successive writes, until ctx is cancelled. It replaces
// a bare poll loop with filesystem notification for replicas following
// a master's commits (§4.N "replica poll interval").
func (s *Store) Watch(ctx context.Context, debounce time.Duration, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("snapshotstore: watch: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	walDir := filepath.Dir(s.walHead())
	if err := watcher.Add(walDir); err != nil {
		return fmt.Errorf("snapshotstore: watch: add %s: %w", walDir, err)
	}

	var timer *time.Timer
	headName := filepath.Base(s.walHead())
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != headName {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, onChange)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("snapshotstore: watch: %w", err)
		}
	}
}

func syncHead(fromPath, toPath string) error {
	id, err := eventlog.ReadHead(fromPath)
	if err != nil || id == "" {
		return nil
	}
	return eventlog.WriteHeadAtomic(toPath, id)
}

func syncDir(ctx context.Context, from, to string) error {
	entries, err := os.ReadDir(from)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", from, err)
	}
	if err := os.MkdirAll(to, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", to, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := syncDir(ctx, filepath.Join(from, e.Name()), filepath.Join(to, e.Name())); err != nil {
				return err
			}
			continue
		}
		dst := filepath.Join(to, e.Name())
		if _, err := os.Stat(dst); err == nil {
			continue // content-addressed: never overwrite what's already there
		}
		if err := copyWithRetry(ctx, filepath.Join(from, e.Name()), dst); err != nil {
			return err
		}
	}
	return nil
}

func copyWithRetry(ctx context.Context, src, dst string) (err error) {
	ctx, span := syncTracer.Start(ctx, "snapshotstore.copy_object",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("axiograph.sync.dst", dst)),
	)
	start := time.Now()
	defer func() {
		syncMetrics.waitMs.Record(ctx, float64(time.Since(start).Milliseconds()))
		endSpan(span, err)
	}()

	attempt := 0
	op := func() error {
		if attempt > 0 {
			syncMetrics.retryCount.Add(ctx, 1)
		}
		attempt++
		data, readErr := os.ReadFile(src)
		if readErr != nil {
			return readErr
		}
		return writeIfAbsent(dst, data)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	err = backoff.Retry(op, policy)
	return err
}

func writeIfAbsent(path string, data []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil // content-addressed: identical content, nothing to do
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func sanitizeDigest(d string) string {
	return strings.ReplaceAll(d, digest.Prefix, "")
}
