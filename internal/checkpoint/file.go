package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/eidolabs/eidolon/internal/entity"
)

// envelope wraps a snapshot with its checkpoint metadata on disk.
type envelope struct {
	Kind    Kind             `json:"kind"`
	Name    string           `json:"name,omitempty"`
	SavedAt time.Time        `json:"savedAt"`
	Snap    *entity.Snapshot `json:"snapshot"`
}

// FileStorage keeps snapshots as JSON files in a directory:
// state.json for the rolling state, auto-<timestamp>.json for the FIFO,
// manual-<slot>.json for named slots.
type FileStorage struct {
	dir       string
	autoSlots int
}

// NewFileStorage creates the directory if needed.
func NewFileStorage(dir string, autoSlots int) (*FileStorage, error) {
	if autoSlots <= 0 {
		autoSlots = DefaultAutoSlots
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileStorage{dir: dir, autoSlots: autoSlots}, nil
}

func (f *FileStorage) statePath() string {
	return filepath.Join(f.dir, "state.json")
}

func (f *FileStorage) Load() (*entity.Snapshot, error) {
	data, err := os.ReadFile(f.statePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var snap entity.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	return &snap, nil
}

func (f *FileStorage) Save(snap *entity.Snapshot) error {
	return f.writeJSON(f.statePath(), snap)
}

func (f *FileStorage) SaveAutoCheckpoint(snap *entity.Snapshot) error {
	name := fmt.Sprintf("auto-%020d.json", snap.SavedAt.UnixNano())
	env := envelope{Kind: KindAuto, SavedAt: snap.SavedAt, Snap: snap}
	if err := f.writeJSON(filepath.Join(f.dir, name), env); err != nil {
		return err
	}
	// Evict oldest past capacity.
	autos, err := f.autoFiles()
	if err != nil {
		return err
	}
	for len(autos) > f.autoSlots {
		oldest := autos[len(autos)-1]
		if err := os.Remove(filepath.Join(f.dir, oldest)); err != nil {
			return fmt.Errorf("evict auto checkpoint: %w", err)
		}
		autos = autos[:len(autos)-1]
	}
	return nil
}

func (f *FileStorage) SaveManualCheckpoint(slot int, name string, snap *entity.Snapshot) error {
	env := envelope{Kind: KindManual, Name: name, SavedAt: snap.SavedAt, Snap: snap}
	return f.writeJSON(f.manualPath(slot), env)
}

func (f *FileStorage) DeleteManualCheckpoint(slot int) error {
	err := os.Remove(f.manualPath(slot))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete manual checkpoint: %w", err)
	}
	return nil
}

func (f *FileStorage) ListCheckpoints() ([]Info, error) {
	var infos []Info

	autos, err := f.autoFiles()
	if err != nil {
		return nil, err
	}
	for i, name := range autos {
		env, err := f.readEnvelope(filepath.Join(f.dir, name))
		if err != nil {
			return nil, err
		}
		infos = append(infos, Info{Index: i, Kind: KindAuto, SavedAt: env.SavedAt})
	}

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint dir: %w", err)
	}
	for _, e := range entries {
		var slot int
		if _, err := fmt.Sscanf(e.Name(), "manual-%d.json", &slot); err != nil {
			continue
		}
		env, err := f.readEnvelope(filepath.Join(f.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		infos = append(infos, Info{Index: f.autoSlots + slot, Kind: KindManual, Name: env.Name, SavedAt: env.SavedAt})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Index < infos[j].Index })
	return infos, nil
}

func (f *FileStorage) LoadCheckpoint(index int) (*entity.Snapshot, error) {
	if index < 0 {
		return nil, nil
	}
	var path string
	if index < f.autoSlots {
		autos, err := f.autoFiles()
		if err != nil {
			return nil, err
		}
		if index >= len(autos) {
			return nil, nil
		}
		path = filepath.Join(f.dir, autos[index])
	} else {
		path = f.manualPath(index - f.autoSlots)
	}

	env, err := f.readEnvelope(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return env.Snap, nil
}

func (f *FileStorage) manualPath(slot int) string {
	return filepath.Join(f.dir, fmt.Sprintf("manual-%d.json", slot))
}

// autoFiles returns auto checkpoint filenames newest first. Timestamped
// zero-padded names make lexical order chronological.
func (f *FileStorage) autoFiles() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "auto-") && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func (f *FileStorage) readEnvelope(path string) (*envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", filepath.Base(path), err)
	}
	return &env, nil
}

func (f *FileStorage) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalize checkpoint: %w", err)
	}
	return nil
}
