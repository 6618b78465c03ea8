package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/reveriehq/reverie/pkg/vector"
)

// Export writes the chat's memory archive to w.
func (a *Archiver) Export(ctx context.Context, chatID string, w io.Writer) error {
	meta, err := a.store.Meta(ctx, chatID)
	if err != nil {
		return fmt.Errorf("loading chat meta: %w", err)
	}
	atoms, err := a.store.Atoms(ctx, chatID)
	if err != nil {
		return fmt.Errorf("loading atoms: %w", err)
	}
	chunks, err := a.store.Chunks(ctx, chatID)
	if err != nil {
		return fmt.Errorf("loading chunks: %w", err)
	}
	summary, err := a.store.SummaryState(ctx, chatID)
	if err != nil {
		return fmt.Errorf("loading summary state: %w", err)
	}
	facts, err := a.store.Facts(ctx, chatID)
	if err != nil {
		return fmt.Errorf("loading facts: %w", err)
	}
	checkpoints, err := a.store.Checkpoints(ctx, chatID)
	if err != nil {
		return fmt.Errorf("loading checkpoints: %w", err)
	}

	manifest := Manifest{
		Version:       ManifestVersionV1,
		ChatID:        chatID,
		BoundaryFloor: meta.LastSummarizedFloor,
		Atoms:         len(atoms),
		Chunks:        len(chunks),
		Events:        len(summary.Events),
	}

	type setPayload struct {
		set  vector.Set
		meta []byte
		blob []byte
	}
	var sets []setPayload

	if a.vectors != nil {
		fp, err := a.vectors.Fingerprint(ctx, chatID)
		if err != nil {
			return fmt.Errorf("reading vector fingerprint: %w", err)
		}
		manifest.Fingerprint = fp

		for _, set := range vector.Sets {
			docs, err := a.vectors.All(ctx, chatID, set)
			if err != nil {
				return fmt.Errorf("loading %s vectors: %w", set, err)
			}
			if len(docs) == 0 {
				continue
			}
			if manifest.Dims == 0 {
				manifest.Dims = len(docs[0].Embedding)
			}

			var metaBuf, blobBuf bytes.Buffer
			enc := json.NewEncoder(&metaBuf)
			for _, doc := range docs {
				if len(doc.Embedding) != manifest.Dims {
					return fmt.Errorf("document %s has %d dims, archive has %d",
						doc.ID, len(doc.Embedding), manifest.Dims)
				}
				if err := enc.Encode(vectorMeta{ID: doc.ID, Floor: doc.Floor}); err != nil {
					return fmt.Errorf("encoding %s metadata: %w", set, err)
				}
				for _, v := range doc.Embedding {
					var word [4]byte
					binary.LittleEndian.PutUint32(word[:], math.Float32bits(v))
					blobBuf.Write(word[:])
				}
			}

			manifest.VectorSets = append(manifest.VectorSets, SetHeader{Set: set, Count: len(docs)})
			sets = append(sets, setPayload{set: set, meta: metaBuf.Bytes(), blob: blobBuf.Bytes()})
		}
	}

	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	writeEntry := func(name string, payload []byte) error {
		if err := tw.WriteHeader(&tar.Header{
			Name:    name,
			Mode:    0o644,
			Size:    int64(len(payload)),
			ModTime: time.Now(),
		}); err != nil {
			return fmt.Errorf("writing %s header: %w", name, err)
		}
		if _, err := tw.Write(payload); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		return nil
	}

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := writeEntry(manifestName, manifestJSON); err != nil {
		return err
	}

	atomLines, err := encodeNDJSON(atoms)
	if err != nil {
		return fmt.Errorf("encoding atoms: %w", err)
	}
	if err := writeEntry(atomsName, atomLines); err != nil {
		return err
	}

	chunkLines, err := encodeNDJSON(chunks)
	if err != nil {
		return fmt.Errorf("encoding chunks: %w", err)
	}
	if err := writeEntry(chunksName, chunkLines); err != nil {
		return err
	}

	eventLines, err := encodeNDJSON(summary.Events)
	if err != nil {
		return fmt.Errorf("encoding events: %w", err)
	}
	if err := writeEntry(eventsName, eventLines); err != nil {
		return err
	}

	stateJSON, err := json.Marshal(chatState{
		Summary:     summary,
		Facts:       facts,
		Checkpoints: checkpoints,
	})
	if err != nil {
		return fmt.Errorf("encoding chat state: %w", err)
	}
	if err := writeEntry(stateName, stateJSON); err != nil {
		return err
	}

	for _, sp := range sets {
		if err := writeEntry(setMetaName(sp.set), sp.meta); err != nil {
			return err
		}
		if err := writeEntry(setBlobName(sp.set), sp.blob); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("closing gzip stream: %w", err)
	}

	a.logger.Info("memory archive exported",
		zap.String("chat_id", chatID),
		zap.Int("atoms", manifest.Atoms),
		zap.Int("chunks", manifest.Chunks),
		zap.Int("events", manifest.Events),
		zap.Int("vector_sets", len(manifest.VectorSets)),
	)

	return nil
}

// encodeNDJSON renders one JSON object per line.
func encodeNDJSON[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
