package history

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Snapshot is a point-in-time condensation of the event stream covering an
// iteration range. Architectural notes, unfinished business, and discovered
// constraints are retained verbatim; files touched are rolled up and
// deduplicated. Snapshots are immutable once written.
type Snapshot struct {
	ID                    string      `json:"id"`
	FromIteration         int         `json:"fromIteration"`
	ToIteration           int         `json:"toIteration"`
	CreatedAt             time.Time   `json:"createdAt"`
	ArchitecturalNotes    []string    `json:"architecturalNotes,omitempty"`
	UnfinishedBusiness    []string    `json:"unfinishedBusiness,omitempty"`
	ConstraintsDiscovered []string    `json:"constraintsDiscovered,omitempty"`
	FilesTouched          []FileTouch `json:"filesTouched,omitempty"`
}

// IndexEntry is one line of the ordered snapshot index.
type IndexEntry struct {
	ID            string    `json:"id"`
	FromIteration int       `json:"fromIteration"`
	ToIteration   int       `json:"toIteration"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AppendSnapshot writes the snapshot content-addressed by the SHA-256 of its
// canonical JSON body, then appends it to the index. Writing the blob before
// the index means a crash between the two leaves a dangling blob, never a
// dangling index entry.
func (s *Store) AppendSnapshot(snap *Snapshot) error {
	body := *snap
	body.ID = ""
	canonical, err := json.Marshal(&body)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	sum := sha256.Sum256(canonical)
	snap.ID = hex.EncodeToString(sum[:])

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	blobPath := filepath.Join(s.dir, snap.ID+".json")
	tmpPath := fmt.Sprintf("%s.tmp.%d", blobPath, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpPath, blobPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename snapshot temp file: %w", err)
	}

	index, err := s.Index()
	if err != nil {
		return err
	}
	index = append(index, IndexEntry{
		ID:            snap.ID,
		FromIteration: snap.FromIteration,
		ToIteration:   snap.ToIteration,
		CreatedAt:     snap.CreatedAt,
	})
	return s.writeIndex(index)
}

// Index returns the ordered snapshot index. A missing index file yields an
// empty sequence.
func (s *Store) Index() ([]IndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot index: %w", err)
	}
	var index []IndexEntry
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot index: %w", err)
	}
	return index, nil
}

// Latest loads the most recent snapshot, or nil when none exists.
func (s *Store) Latest() (*Snapshot, error) {
	index, err := s.Index()
	if err != nil {
		return nil, err
	}
	if len(index) == 0 {
		return nil, nil
	}
	return s.LoadSnapshot(index[len(index)-1].ID)
}

// LoadSnapshot reads one snapshot blob by id.
func (s *Store) LoadSnapshot(id string) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", id, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", id, err)
	}
	return &snap, nil
}

// writeIndex atomically replaces the snapshot index.
func (s *Store) writeIndex(index []IndexEntry) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot index: %w", err)
	}
	indexPath := filepath.Join(s.dir, indexFileName)
	tmpPath := fmt.Sprintf("%s.tmp.%d", indexPath, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write index temp file: %w", err)
	}
	if err := os.Rename(tmpPath, indexPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename index temp file: %w", err)
	}
	return nil
}
