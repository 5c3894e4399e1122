// Package localindex keeps the vector index on local disk: a SQLite snapshot of
// chunks and embeddings plus a YAML manifest, searched in memory.
package localindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"github.com/kirillkom/campus-assistant/internal/core/domain"
)

const dbFile = "index.db"

type Index struct {
	dir       string
	manifests *ManifestFile
	current   atomic.Pointer[snapshot]
	writeMu   sync.Mutex
	reloadMu  sync.Mutex
}

type snapshot struct {
	manifest domain.IndexManifest
	chunks   []domain.Chunk
	vectors  [][]float32
	norms    []float64
}

// New returns an index rooted at indexDir/vector_index. Nothing is read until
// the first Search, Manifest or Reload.
func New(indexDir string) *Index {
	if indexDir == "" {
		indexDir = "."
	}
	dir := filepath.Join(indexDir, domain.IndexName)
	return &Index{
		dir:       dir,
		manifests: &ManifestFile{path: filepath.Join(dir, manifestFile)},
	}
}

func (x *Index) Dir() string {
	return x.dir
}

// Replace writes a new snapshot and swaps it in. Readers keep whatever snapshot
// they already hold.
func (x *Index) Replace(ctx context.Context, chunks []domain.Chunk, vectors [][]float32, manifest domain.IndexManifest) error {
	if len(chunks) != len(vectors) {
		return domain.WrapError(domain.ErrIndexBuild, "replace local index",
			fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks)))
	}

	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	if err := os.MkdirAll(x.dir, 0o755); err != nil {
		return domain.WrapError(domain.ErrIndexBuild, "create index dir", err)
	}
	if err := x.writeDB(ctx, chunks, vectors); err != nil {
		return domain.WrapError(domain.ErrIndexBuild, "write index db", err)
	}
	if err := x.manifests.Write(manifest); err != nil {
		return domain.WrapError(domain.ErrIndexBuild, "write index manifest", err)
	}

	x.current.Store(newSnapshot(manifest, chunks, vectors))
	slog.Info("local_index_replaced", "dir", x.dir, "chunks", len(chunks))
	return nil
}

// Reload reads the persisted snapshot from disk and swaps it in.
func (x *Index) Reload(ctx context.Context) error {
	x.reloadMu.Lock()
	defer x.reloadMu.Unlock()

	manifest, err := x.Manifest(ctx)
	if err != nil {
		return err
	}
	chunks, vectors, err := x.readDB(ctx)
	if err != nil {
		return domain.WrapError(domain.ErrIndexUnavailable, "read index db", err)
	}
	if len(chunks) != manifest.Chunks {
		return domain.WrapError(domain.ErrIndexUnavailable, "read index db",
			fmt.Errorf("manifest lists %d chunks, db holds %d", manifest.Chunks, len(chunks)))
	}

	x.current.Store(newSnapshot(manifest, chunks, vectors))
	slog.Info("local_index_loaded", "dir", x.dir, "chunks", len(chunks), "built_at", manifest.BuiltAt)
	return nil
}

func (x *Index) Search(ctx context.Context, queryVector []float32, limit int) ([]domain.RetrievedChunk, error) {
	snap := x.current.Load()
	if snap == nil {
		if err := x.Reload(ctx); err != nil {
			return nil, err
		}
		snap = x.current.Load()
	}
	if limit <= 0 {
		limit = domain.DefaultTopK
	}
	if len(queryVector) != snap.manifest.Dimension {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "search local index",
			fmt.Errorf("query dimension %d, index dimension %d", len(queryVector), snap.manifest.Dimension))
	}

	queryNorm := norm(queryVector)
	hits := make([]domain.RetrievedChunk, 0, len(snap.chunks))
	for i, vector := range snap.vectors {
		hits = append(hits, domain.RetrievedChunk{
			Chunk: snap.chunks[i],
			Score: cosine(queryVector, vector, queryNorm, snap.norms[i]),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Manifest reads the manifest from disk so a fresh process can decide on reuse.
func (x *Index) Manifest(ctx context.Context) (domain.IndexManifest, error) {
	return x.manifests.Read(ctx)
}

func (x *Index) writeDB(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	tmp, err := os.CreateTemp(x.dir, "index-*.db.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	db, err := sql.Open("sqlite", tmpPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	if err := fillDB(ctx, db, chunks, vectors); err != nil {
		db.Close()
		return err
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return os.Rename(tmpPath, filepath.Join(x.dir, dbFile))
}

func fillDB(ctx context.Context, db *sql.DB, chunks []domain.Chunk, vectors [][]float32) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE chunks (
			id INTEGER PRIMARY KEY,
			content TEXT NOT NULL,
			category TEXT NOT NULL,
			title TEXT NOT NULL,
			segment_index INTEGER NOT NULL,
			source TEXT NOT NULL,
			urls TEXT NOT NULL,
			embedding BLOB NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating chunks table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, content, category, title, segment_index, source, urls, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for i, chunk := range chunks {
		urls, err := json.Marshal(chunk.URLs)
		if err != nil {
			return fmt.Errorf("marshalling chunk urls: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, i, chunk.Content, chunk.Category, chunk.Title,
			chunk.Index, chunk.Source, string(urls), float32SliceToBytes(vectors[i])); err != nil {
			return fmt.Errorf("saving chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (x *Index) readDB(ctx context.Context) ([]domain.Chunk, [][]float32, error) {
	path := filepath.Join(x.dir, dbFile)
	if _, err := os.Stat(path); err != nil {
		return nil, nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT id, content, category, title, segment_index, source, urls, embedding
		FROM chunks ORDER BY id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var (
		chunks  []domain.Chunk
		vectors [][]float32
	)
	for rows.Next() {
		var (
			chunk     domain.Chunk
			urls      string
			embedding []byte
		)
		if err := rows.Scan(&chunk.ID, &chunk.Content, &chunk.Category, &chunk.Title,
			&chunk.Index, &chunk.Source, &urls, &embedding); err != nil {
			return nil, nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if err := json.Unmarshal([]byte(urls), &chunk.URLs); err != nil {
			return nil, nil, fmt.Errorf("unmarshalling chunk urls: %w", err)
		}
		chunks = append(chunks, chunk)
		vectors = append(vectors, bytesToFloat32Slice(embedding))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, vectors, nil
}

func newSnapshot(manifest domain.IndexManifest, chunks []domain.Chunk, vectors [][]float32) *snapshot {
	norms := make([]float64, len(vectors))
	for i, v := range vectors {
		norms[i] = norm(v)
	}
	return &snapshot{
		manifest: manifest,
		chunks:   chunks,
		vectors:  vectors,
		norms:    norms,
	}
}

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}

func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
