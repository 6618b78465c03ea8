package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"go.uber.org/zap"

	"github.com/reveriehq/reverie/pkg/model"
	"github.com/reveriehq/reverie/pkg/vector"
)

// Import restores an archive into the chat, replacing its current memory
// state. The manifest is validated against the payload before anything is
// written; a mismatch leaves the chat untouched.
func (a *Archiver) Import(ctx context.Context, chatID string, r io.Reader) error {
	entries, err := readEntries(r)
	if err != nil {
		return err
	}

	manifestJSON, ok := entries[manifestName]
	if !ok {
		return fmt.Errorf("%w: missing %s", ErrManifestMismatch, manifestName)
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestJSON, &manifest); err != nil {
		return fmt.Errorf("decoding manifest: %w", err)
	}
	if manifest.Version != ManifestVersionV1 {
		return fmt.Errorf("unsupported archive version %d", manifest.Version)
	}

	atoms, err := decodeNDJSON[model.Atom](entries[atomsName])
	if err != nil {
		return fmt.Errorf("decoding atoms: %w", err)
	}
	chunks, err := decodeNDJSON[model.Chunk](entries[chunksName])
	if err != nil {
		return fmt.Errorf("decoding chunks: %w", err)
	}

	stateJSON, ok := entries[stateName]
	if !ok {
		return fmt.Errorf("%w: missing %s", ErrManifestMismatch, stateName)
	}
	var state chatState
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		return fmt.Errorf("decoding chat state: %w", err)
	}

	if len(atoms) != manifest.Atoms {
		return fmt.Errorf("%w: manifest says %d atoms, archive has %d",
			ErrManifestMismatch, manifest.Atoms, len(atoms))
	}
	if len(chunks) != manifest.Chunks {
		return fmt.Errorf("%w: manifest says %d chunks, archive has %d",
			ErrManifestMismatch, manifest.Chunks, len(chunks))
	}
	if len(state.Summary.Events) != manifest.Events {
		return fmt.Errorf("%w: manifest says %d events, archive has %d",
			ErrManifestMismatch, manifest.Events, len(state.Summary.Events))
	}

	type setDocs struct {
		set  vector.Set
		docs []vector.Document
	}
	var sets []setDocs
	if a.vectors != nil {
		for _, header := range manifest.VectorSets {
			docs, err := decodeSet(entries, header, manifest.Dims)
			if err != nil {
				return err
			}
			sets = append(sets, setDocs{set: header.Set, docs: docs})
		}
	}

	if err := a.store.Reset(ctx, chatID); err != nil {
		return fmt.Errorf("resetting chat: %w", err)
	}

	if len(atoms) > 0 {
		if err := a.store.PutAtoms(ctx, chatID, atoms); err != nil {
			return fmt.Errorf("restoring atoms: %w", err)
		}
	}
	if len(chunks) > 0 {
		if err := a.store.PutChunks(ctx, chatID, chunks); err != nil {
			return fmt.Errorf("restoring chunks: %w", err)
		}
	}
	if err := a.store.PutSummaryState(ctx, chatID, state.Summary); err != nil {
		return fmt.Errorf("restoring summary state: %w", err)
	}
	if err := a.store.PutFacts(ctx, chatID, state.Facts); err != nil {
		return fmt.Errorf("restoring facts: %w", err)
	}
	for _, cp := range state.Checkpoints {
		if err := a.store.AppendCheckpoint(ctx, chatID, cp); err != nil {
			return fmt.Errorf("restoring checkpoints: %w", err)
		}
	}
	if err := a.store.PutMeta(ctx, chatID, model.ChatMeta{
		LastSummarizedFloor: manifest.BoundaryFloor,
	}); err != nil {
		return fmt.Errorf("restoring chat meta: %w", err)
	}

	if a.vectors != nil {
		if err := a.vectors.DropChat(ctx, chatID); err != nil {
			return fmt.Errorf("dropping stale vectors: %w", err)
		}
		for _, sd := range sets {
			if err := a.vectors.Add(ctx, chatID, sd.set, sd.docs); err != nil {
				return fmt.Errorf("restoring %s vectors: %w", sd.set, err)
			}
		}
		if manifest.Fingerprint != "" {
			if err := a.vectors.SetFingerprint(ctx, chatID, manifest.Fingerprint); err != nil {
				return fmt.Errorf("restoring vector fingerprint: %w", err)
			}
		}
	}

	a.logger.Info("memory archive imported",
		zap.String("chat_id", chatID),
		zap.Int("atoms", manifest.Atoms),
		zap.Int("chunks", manifest.Chunks),
		zap.Int("events", manifest.Events),
		zap.Int("boundary_floor", manifest.BoundaryFloor),
	)

	return nil
}

// readEntries loads the tar.gz contents into memory by entry name.
func readEntries(r io.Reader) (map[string][]byte, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gz.Close()

	entries := make(map[string][]byte)
	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading archive: %w", err)
		}
		payload, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", header.Name, err)
		}
		entries[header.Name] = payload
	}
	return entries, nil
}

// decodeSet pairs one set's metadata lines with its blob.
func decodeSet(entries map[string][]byte, header SetHeader, dims int) ([]vector.Document, error) {
	metaRaw, ok := entries[setMetaName(header.Set)]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrManifestMismatch, setMetaName(header.Set))
	}
	blob, ok := entries[setBlobName(header.Set)]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrManifestMismatch, setBlobName(header.Set))
	}

	metas, err := decodeNDJSON[vectorMeta](metaRaw)
	if err != nil {
		return nil, fmt.Errorf("decoding %s metadata: %w", header.Set, err)
	}
	if len(metas) != header.Count {
		return nil, fmt.Errorf("%w: manifest says %d %s vectors, archive has %d",
			ErrManifestMismatch, header.Count, header.Set, len(metas))
	}
	if dims <= 0 || len(blob) != header.Count*dims*4 {
		return nil, fmt.Errorf("%w: %s blob is %d bytes, want %d",
			ErrManifestMismatch, header.Set, len(blob), header.Count*dims*4)
	}

	docs := make([]vector.Document, len(metas))
	for i, meta := range metas {
		embedding := make([]float32, dims)
		for j := range embedding {
			offset := (i*dims + j) * 4
			embedding[j] = math.Float32frombits(binary.LittleEndian.Uint32(blob[offset : offset+4]))
		}
		docs[i] = vector.Document{ID: meta.ID, Floor: meta.Floor, Embedding: embedding}
	}
	return docs, nil
}

// decodeNDJSON parses one JSON object per line; nil input is empty.
func decodeNDJSON[T any](raw []byte) ([]T, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var items []T
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var item T
		if err := json.Unmarshal(line, &item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
