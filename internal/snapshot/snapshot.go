// Package snapshot persists posting sets as JSON files that are replaced
// atomically.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/jmylchreest/jobsift/internal/logger"
	"github.com/jmylchreest/jobsift/internal/posting"
)

// Snapshot file names.
const (
	Current  = "current_postings.json"
	History  = "postings_history.json"
	NewAdded = "newly_added_postings.json"
)

// Store reads and writes snapshots in one directory.
type Store struct {
	Dir    string
	Pretty bool // Indent written files
}

// New creates a store rooted at dir.
func New(dir string, pretty bool) *Store {
	return &Store{Dir: dir, Pretty: pretty}
}

// Path returns the path of a snapshot file.
func (s *Store) Path(name string) string {
	return filepath.Join(s.Dir, name)
}

// Load reads a snapshot. A missing file is an empty set.
func (s *Store) Load(name string) (posting.Set, error) {
	return LoadFile(s.Path(name))
}

// LoadFile reads a snapshot from path. A missing file is an empty set; a
// file that is not a JSON object of postings is an error.
func LoadFile(path string) (posting.Set, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Debug("snapshot missing, starting empty", "path", path)
		return posting.Set{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	set := posting.Set{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return set, nil
	}
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	for id, p := range set {
		if p.ID == "" {
			p.ID = id
			set[id] = p
		}
	}
	logger.Debug("snapshot loaded", "path", path, "postings", len(set), "size", humanize.Bytes(uint64(len(data))))
	return set, nil
}

// Save writes set to a snapshot file, replacing it only once the new
// content is fully on disk.
func (s *Store) Save(name string, set posting.Set) error {
	return s.write(s.Path(name), set)
}

// Commit writes the current, history and newly added snapshots in that
// order. The first failure is returned and later files are not touched.
func (s *Store) Commit(current, history, added posting.Set) error {
	for _, f := range []struct {
		name string
		set  posting.Set
	}{
		{Current, current},
		{History, history},
		{NewAdded, added},
	} {
		if err := s.Save(f.name, f.set); err != nil {
			return err
		}
	}
	return nil
}

// BatchName returns the file name of a dated raw batch.
func BatchName(source, date string) string {
	return fmt.Sprintf("postings_%s_%s.json", sanitize(source), date)
}

// SaveBatch writes one run's raw batch for a source.
func (s *Store) SaveBatch(source, date string, set posting.Set) (string, error) {
	path := s.Path(BatchName(source, date))
	return path, s.write(path, set)
}

// Batches returns the batch files in the store, oldest first.
func (s *Store) Batches() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(s.Dir, "postings_*_*.json"))
	if err != nil {
		return nil, err
	}
	SortByDate(paths)
	return paths, nil
}

var nameDate = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// DateFromName returns the last date embedded in a file name, or "".
func DateFromName(path string) string {
	matches := nameDate.FindAllString(filepath.Base(path), -1)
	for i := len(matches) - 1; i >= 0; i-- {
		if posting.ValidDate(matches[i]) {
			return matches[i]
		}
	}
	return ""
}

// SortByDate orders paths by their embedded date, then by name.
func SortByDate(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		di, dj := DateFromName(paths[i]), DateFromName(paths[j])
		if di != dj {
			return di < dj
		}
		return paths[i] < paths[j]
	})
}

// LoadBatch reads a batch file. Postings without a collection date take the
// date from the file name.
func LoadBatch(path string) (posting.Set, error) {
	set, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if date := DateFromName(path); date != "" {
		for id, p := range set {
			if p.CollectedOn == "" {
				p.CollectedOn = date
				set[id] = p
			}
		}
	}
	return set, nil
}

func (s *Store) write(path string, v any) error {
	var (
		data []byte
		err  error
	)
	if s.Pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := WriteFileAtomic(path, append(data, '\n')); err != nil {
		return err
	}
	logger.Debug("snapshot written", "path", path, "size", humanize.Bytes(uint64(len(data)+1)))
	return nil
}

// WriteFileAtomic writes data to a temporary file next to path, syncs it
// and renames it over path. On failure path is left as it was.
func WriteFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func sanitize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, s)
}
