package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// statsVersion is bumped when the file layout changes.
	statsVersion = 1

	statsFileName = "stats.json"
)

// Stats is the persistent aggregate record of the bot's connection history.
type Stats struct {
	Version int `json:"version"`

	ConnectAttempts int            `json:"connectAttempts"`
	Spawns          int            `json:"spawns"`
	Disconnects     map[string]int `json:"disconnects"` // keyed by session.Cause
	Stops           int            `json:"stops"`
	RetriesArmed    int            `json:"retriesArmed"`
	ChatsSent       int            `json:"chatsSent"`
	Heartbeats      int            `json:"heartbeats"`

	TotalOnlineSec   float64 `json:"totalOnlineSec"`
	LongestOnlineSec float64 `json:"longestOnlineSec"`

	LastOnline  time.Time `json:"lastOnline,omitempty"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Store loads and saves Stats as JSON in a directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir. The directory is created on the
// first Save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Path() string {
	return filepath.Join(s.dir, statsFileName)
}

// Load reads stats from disk. A missing file yields empty stats.
func (s *Store) Load() (*Stats, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return newStats(), nil
		}
		return nil, fmt.Errorf("reading stats: %w", err)
	}

	var st Stats
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parsing stats: %w", err)
	}
	if st.Disconnects == nil {
		st.Disconnects = make(map[string]int)
	}
	return &st, nil
}

// Save writes st through a temp file and rename so readers never see a
// partial file.
func (s *Store) Save(st *Stats) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating stats dir: %w", err)
	}

	st.Version = statsVersion
	st.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, ".stats-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		return fmt.Errorf("renaming stats file: %w", err)
	}
	committed = true
	return nil
}

func newStats() *Stats {
	return &Stats{Version: statsVersion, Disconnects: make(map[string]int)}
}

func (st *Stats) clone() *Stats {
	cp := *st
	cp.Disconnects = make(map[string]int, len(st.Disconnects))
	for k, v := range st.Disconnects {
		cp.Disconnects[k] = v
	}
	return &cp
}
