package vecindex

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// On-disk layout: vectors.bin carries a 12-byte header (magic, dim, count)
// followed by count*dim little-endian float32s. docs.json is the parallel
// document list. Both files are replaced via temp-file rename on every
// mutation; a crash between the two renames leaves mismatched counts, which
// Open detects and reports as ErrCorrupt instead of loading half a snapshot.

const vectorsMagic = uint32(0x52564931) // "RVI1"

func (x *Index) vectorsPath() string { return filepath.Join(x.dir, "vectors.bin") }
func (x *Index) docsPath() string    { return filepath.Join(x.dir, "docs.json") }

// persistLocked writes both artifacts. Caller must hold x.mu.
func (x *Index) persistLocked() error {
	docs := x.docs
	if docs == nil {
		docs = []Document{}
	}
	docsBytes, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encoding document list: %w", err)
	}
	if err := writeAtomic(x.docsPath(), docsBytes); err != nil {
		return fmt.Errorf("writing document list: %w", err)
	}

	if err := writeAtomic(x.vectorsPath(), encodeVectors(x.dim, x.vectors)); err != nil {
		return fmt.Errorf("writing vector blob: %w", err)
	}
	return nil
}

// writeAtomic writes data to a temp file in the same directory and renames it
// over path, so readers never observe a partial write.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func encodeVectors(dim int, vectors [][]float32) []byte {
	buf := make([]byte, 12+len(vectors)*dim*4)
	binary.LittleEndian.PutUint32(buf[0:], vectorsMagic)
	binary.LittleEndian.PutUint32(buf[4:], uint32(dim))
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(vectors)))
	off := 12
	for _, v := range vectors {
		for _, f := range v {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(f))
			off += 4
		}
	}
	return buf
}

func readVectors(path string) (int, [][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, fmt.Errorf("reading vector blob: %w", err)
	}
	if len(data) < 12 {
		return 0, nil, fmt.Errorf("%w: vector blob truncated (%d bytes)", ErrCorrupt, len(data))
	}
	if binary.LittleEndian.Uint32(data[0:]) != vectorsMagic {
		return 0, nil, fmt.Errorf("%w: bad vector blob magic", ErrCorrupt)
	}
	dim := int(binary.LittleEndian.Uint32(data[4:]))
	count := int(binary.LittleEndian.Uint32(data[8:]))

	want := 12 + count*dim*4
	if len(data) != want {
		return 0, nil, fmt.Errorf("%w: vector blob is %d bytes, want %d for %d x %d", ErrCorrupt, len(data), want, count, dim)
	}
	if count > 0 && dim == 0 {
		return 0, nil, fmt.Errorf("%w: %d vectors with zero dimension", ErrCorrupt, count)
	}

	vectors := make([][]float32, count)
	off := 12
	for i := range vectors {
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
		vectors[i] = v
	}
	return dim, vectors, nil
}

func readDocs(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document list: %w", err)
	}
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("%w: decoding document list: %v", ErrCorrupt, err)
	}
	return docs, nil
}
