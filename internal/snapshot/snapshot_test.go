package snapshot

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/jmylchreest/jobsift/internal/posting"
)

func sample() posting.Set {
	return posting.Set{
		"site1_1": posting.Posting{ID: "site1_1", Title: "Engineer", Locations: []string{"Wien"}, CollectedOn: "2024-01-10"}.WithScore(1.5),
		"site1_2": {ID: "site1_2", Title: "Analyst"},
	}
}

// --- Load/Save Tests ---

func TestLoad_MissingIsEmpty(t *testing.T) {
	s := New(t.TempDir(), false)
	set, err := s.Load(Current)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if set == nil || len(set) != 0 {
		t.Errorf("Load() = %v, want empty set", set)
	}
}

func TestLoad_Malformed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, Current), []byte(`[1, 2]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(dir, false).Load(Current); err == nil {
		t.Error("expected error for malformed snapshot")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := New(t.TempDir(), true)
	if err := s.Save(History, sample()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := s.Load(History)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got["site1_1"].Score() != 1.5 || got["site1_1"].Locations[0] != "Wien" {
		t.Errorf("site1_1 = %+v", got["site1_1"])
	}
	if got["site1_2"].HasScore() {
		t.Error("unscored posting gained a score")
	}
}

func TestLoad_FillsMissingIDs(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, Current), []byte(`{"k_9": {"title": "x"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := New(dir, false).Load(Current)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got["k_9"].ID != "k_9" {
		t.Errorf("ID = %q, want k_9", got["k_9"].ID)
	}
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, false)
	for range 3 {
		if err := s.Save(Current, sample()); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != Current {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("dir entries = %v, want only %s", names, Current)
	}
}

func TestSave_FailureKeepsOldFile(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, false)
	if err := s.Save(Current, sample()); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(s.Path(Current))

	bad := posting.Set{"x": posting.Posting{ID: "x"}.WithScore(nan())}
	if err := s.Save(Current, bad); err == nil {
		t.Fatal("expected an encode error for NaN")
	}
	after, _ := os.ReadFile(s.Path(Current))
	if string(before) != string(after) {
		t.Error("failed save changed the existing snapshot")
	}
}

func nan() float64 {
	zero := 0.0
	return zero / zero
}

// --- Commit Tests ---

func TestCommit_WritesAllThree(t *testing.T) {
	s := New(t.TempDir(), false)
	added := posting.Set{"site1_2": sample()["site1_2"]}
	if err := s.Commit(sample(), sample(), added); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	for name, want := range map[string]int{Current: 2, History: 2, NewAdded: 1} {
		got, err := s.Load(name)
		if err != nil {
			t.Fatalf("Load(%s) error = %v", name, err)
		}
		if len(got) != want {
			t.Errorf("%s has %d postings, want %d", name, len(got), want)
		}
	}
}

func TestCommit_StopsAtFirstFailure(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, false)
	// a directory in place of the history file makes its rename fail
	if err := os.Mkdir(s.Path(History), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.Path(History), "keep"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(sample(), sample(), sample()); err == nil {
		t.Fatal("expected Commit() error")
	}
	if _, err := os.Stat(s.Path(NewAdded)); !os.IsNotExist(err) {
		t.Errorf("newly added snapshot written after a failure, stat error = %v", err)
	}
}

// --- Batch Tests ---

func TestBatchName(t *testing.T) {
	if got, want := BatchName("Karriere.at", "2024-01-10"), "postings_karriere-at_2024-01-10.json"; got != want {
		t.Errorf("BatchName() = %q, want %q", got, want)
	}
}

func TestDateFromName(t *testing.T) {
	tests := map[string]string{
		"postings_site1_2024-01-10.json": "2024-01-10",
		"postings_site1.json":            "",
		"postings_site1_2024-13-40.json": "",

		"/data/postings_2023-01-01_2024-02-03.json": "2024-02-03",
	}
	for in, want := range tests {
		if got := DateFromName(in); got != want {
			t.Errorf("DateFromName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBatches_SortedByDate(t *testing.T) {
	s := New(t.TempDir(), false)
	for _, b := range []struct{ source, date string }{
		{"b", "2024-01-10"},
		{"a", "2024-01-10"},
		{"a", "2023-12-31"},
	} {
		if _, err := s.SaveBatch(b.source, b.date, sample()); err != nil {
			t.Fatalf("SaveBatch() error = %v", err)
		}
	}
	paths, err := s.Batches()
	if err != nil {
		t.Fatalf("Batches() error = %v", err)
	}
	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	want := []string{"postings_a_2023-12-31.json", "postings_a_2024-01-10.json", "postings_b_2024-01-10.json"}
	if !slices.Equal(names, want) {
		t.Errorf("Batches() = %v, want %v", names, want)
	}
}

func TestLoadBatch_DateFromName(t *testing.T) {
	s := New(t.TempDir(), false)
	path, err := s.SaveBatch("site1", "2024-03-05", sample())
	if err != nil {
		t.Fatal(err)
	}
	set, err := LoadBatch(path)
	if err != nil {
		t.Fatalf("LoadBatch() error = %v", err)
	}
	if got := set["site1_2"].CollectedOn; got != "2024-03-05" {
		t.Errorf("collected_on = %q, want 2024-03-05 from the file name", got)
	}
	if got := set["site1_1"].CollectedOn; got != "2024-01-10" {
		t.Errorf("collected_on = %q, want own 2024-01-10", got)
	}
}
