// Package archive packs a chat's full memory state into a portable tar.gz
// and restores it. The archive holds a manifest, newline-delimited metadata
// for each tier, and raw little-endian float32 blobs per vector set ordered
// to match the per-set metadata files.
package archive

import (
	"errors"

	"go.uber.org/zap"

	"github.com/reveriehq/reverie/pkg/model"
	"github.com/reveriehq/reverie/pkg/store"
	"github.com/reveriehq/reverie/pkg/vector"
)

// ErrManifestMismatch is returned when an archive's manifest disagrees with
// its payload (counts, dimensions or missing entries).
var ErrManifestMismatch = errors.New("archive manifest mismatch")

// ManifestVersionV1 is the first archive manifest version.
const ManifestVersionV1 = 1

const (
	manifestName = "manifest.json"
	atomsName    = "atoms.ndjson"
	chunksName   = "chunks.ndjson"
	eventsName   = "events.ndjson"
	stateName    = "state.json"
)

// Manifest describes an archive's contents.
type Manifest struct {
	Version       int         `json:"version"`
	ChatID        string      `json:"chat_id"`
	BoundaryFloor int         `json:"boundary_floor"`
	Fingerprint   string      `json:"fingerprint,omitempty"`
	Dims          int         `json:"dims,omitempty"`
	Atoms         int         `json:"atoms"`
	Chunks        int         `json:"chunks"`
	Events        int         `json:"events"`
	VectorSets    []SetHeader `json:"vector_sets,omitempty"`
}

// SetHeader describes one vector set's blob.
type SetHeader struct {
	Set   vector.Set `json:"set"`
	Count int        `json:"count"`
}

// chatState bundles the merged structures that have no per-item metadata
// file: summary state, facts and the checkpoint history.
type chatState struct {
	Summary     model.SummaryState `json:"summary"`
	Facts       []model.Fact       `json:"facts"`
	Checkpoints []model.Checkpoint `json:"checkpoints"`
}

// vectorMeta is one line of a per-set vector metadata file; the blob holds
// the embeddings in the same order.
type vectorMeta struct {
	ID    string `json:"id"`
	Floor int    `json:"floor"`
}

func setMetaName(set vector.Set) string {
	return "vectors/" + string(set) + ".ndjson"
}

func setBlobName(set vector.Set) string {
	return "vectors/" + string(set) + ".f32"
}

// Archiver exports and imports chat memory archives.
type Archiver struct {
	store   store.Driver
	vectors vector.Driver
	logger  *zap.Logger
}

// New creates an Archiver. A nil vector driver archives the store tiers
// only.
func New(s store.Driver, v vector.Driver, logger *zap.Logger) *Archiver {
	return &Archiver{store: s, vectors: v, logger: logger}
}
