// Package vecindex implements a flat vector index with exact nearest-neighbor
// search and paired-file persistence. Documents and their embeddings are
// parallel lists: position i in the vector blob belongs to document i.
package vecindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrEmbedding wraps failures of the embedding capability. Callers can treat
// these as transient and retry the request later.
var ErrEmbedding = errors.New("embedding failed")

// ErrCorrupt indicates the on-disk artifacts are unreadable or inconsistent.
// The index refuses to load rather than silently rebuilding from partial state.
var ErrCorrupt = errors.New("vector index corrupt")

const embedTimeout = 10 * time.Second

// Embedder converts text to a fixed-dimension vector. All inserts and queries
// against one index must use the same embedding model; mixing models
// invalidates the distance metric.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Document is a stored text with its insertion-order ID.
type Document struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// ScoredDocument is a Document with its squared Euclidean distance to a query.
type ScoredDocument struct {
	Document
	Distance float32 `json:"distance"`
}

// Index is a growable collection of (document, embedding) pairs. All methods
// are safe for concurrent use; insert, search and persistence are serialized
// behind a single mutex so the on-disk snapshot never interleaves with an
// in-flight append.
type Index struct {
	mu       sync.Mutex
	embedder Embedder
	dir      string
	dim      int
	vectors  [][]float32
	docs     []Document
}

// Open loads the index from dir, or creates an empty one when neither artifact
// exists yet. The vector blob and document list are written together; finding
// only one of them, or mismatched lengths, is reported as ErrCorrupt.
func Open(dir string, embedder Embedder) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	idx := &Index{embedder: embedder, dir: dir}

	vecExists := fileExists(idx.vectorsPath())
	docsExists := fileExists(idx.docsPath())

	switch {
	case !vecExists && !docsExists:
		// First run: persist empty artifacts so both files exist from here on.
		if err := idx.persistLocked(); err != nil {
			return nil, err
		}
		return idx, nil
	case vecExists != docsExists:
		return nil, fmt.Errorf("%w: only one of %s and %s is present",
			ErrCorrupt, filepath.Base(idx.vectorsPath()), filepath.Base(idx.docsPath()))
	}

	dim, vectors, err := readVectors(idx.vectorsPath())
	if err != nil {
		return nil, err
	}
	docs, err := readDocs(idx.docsPath())
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("%w: %d vectors but %d documents", ErrCorrupt, len(vectors), len(docs))
	}
	for i, d := range docs {
		if d.ID != int64(i) {
			return nil, fmt.Errorf("%w: document at position %d has id %d", ErrCorrupt, i, d.ID)
		}
	}

	idx.dim = dim
	idx.vectors = vectors
	idx.docs = docs
	return idx, nil
}

// Insert embeds text, appends the document and its vector, persists both
// artifacts and returns the new document ID. Once Insert returns, subsequent
// searches include the document.
func (x *Index) Insert(ctx context.Context, text string) (int64, error) {
	vec, err := x.embed(ctx, text)
	if err != nil {
		return 0, err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	return x.appendLocked(text, vec)
}

// InsertBatch embeds texts concurrently and appends them in input order under
// a single persist. Returns the IDs assigned, matching the input order.
func (x *Index) InsertBatch(ctx context.Context, texts []string) ([]int64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vecs := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to avoid overwhelming the embedder.
	for i, text := range texts {
		g.Go(func() error {
			vec, err := x.embed(gCtx, text)
			if err != nil {
				return err
			}
			vecs[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	start := len(x.docs)
	ids := make([]int64, len(texts))
	for i, text := range texts {
		if err := x.checkDimLocked(vecs[i]); err != nil {
			x.rollbackLocked(start)
			return nil, err
		}
		id := int64(len(x.docs))
		x.docs = append(x.docs, Document{ID: id, Text: text})
		x.vectors = append(x.vectors, vecs[i])
		ids[i] = id
	}
	if err := x.persistLocked(); err != nil {
		x.rollbackLocked(start)
		return nil, err
	}
	return ids, nil
}

func (x *Index) appendLocked(text string, vec []float32) (int64, error) {
	if err := x.checkDimLocked(vec); err != nil {
		return 0, err
	}

	id := int64(len(x.docs))
	x.docs = append(x.docs, Document{ID: id, Text: text})
	x.vectors = append(x.vectors, vec)

	if err := x.persistLocked(); err != nil {
		x.rollbackLocked(int(id))
		return 0, err
	}
	return id, nil
}

func (x *Index) checkDimLocked(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", ErrEmbedding)
	}
	if x.dim == 0 {
		x.dim = len(vec)
		return nil
	}
	if len(vec) != x.dim {
		return fmt.Errorf("embedding dimension %d does not match index dimension %d (different embedding model?)", len(vec), x.dim)
	}
	return nil
}

// rollbackLocked truncates in-memory state back to n entries after a failed
// append, keeping memory consistent with the last good on-disk snapshot.
func (x *Index) rollbackLocked(n int) {
	x.docs = x.docs[:n]
	x.vectors = x.vectors[:n]
	if n == 0 {
		x.dim = 0
	}
}

// Search embeds the query and returns the k nearest documents by squared
// Euclidean distance, best match first. Ties break toward the
// earlier-inserted document. k is clamped to [0, stored count]; searching an
// empty index returns an empty result, not an error.
func (x *Index) Search(ctx context.Context, query string, k int) ([]Document, error) {
	scored, err := x.SearchScored(ctx, query, k)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, len(scored))
	for i, s := range scored {
		docs[i] = s.Document
	}
	return docs, nil
}

// SearchScored is Search with the squared distance attached to each result.
func (x *Index) SearchScored(ctx context.Context, query string, k int) ([]ScoredDocument, error) {
	if k <= 0 {
		return []ScoredDocument{}, nil
	}

	x.mu.Lock()
	empty := len(x.docs) == 0
	x.mu.Unlock()
	if empty {
		return []ScoredDocument{}, nil
	}

	vec, err := x.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if k > len(x.docs) {
		k = len(x.docs)
	}

	scored := make([]ScoredDocument, len(x.docs))
	for i, v := range x.vectors {
		scored[i] = ScoredDocument{Document: x.docs[i], Distance: squaredL2(vec, v)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Distance < scored[j].Distance
	})
	return scored[:k:k], nil
}

// Count returns the number of stored documents.
func (x *Index) Count() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.docs)
}

// Dim returns the embedding dimension, or 0 when the index is empty.
func (x *Index) Dim() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.dim
}

func (x *Index) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	vec, err := x.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	return vec, nil
}

// squaredL2 returns the squared Euclidean distance between two vectors.
// Mismatched lengths cannot occur for vectors stored in the same index.
func squaredL2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(sum)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
