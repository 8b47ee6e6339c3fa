package artifact

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnsureJobDirs(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)

	if err := s.EnsureJobDirs(1, "q_1_100"); err != nil {
		t.Fatalf("EnsureJobDirs: %v", err)
	}

	for _, dir := range []string{
		s.JobFolder(1, "q_1_100"),
		s.responsesDir(1, "q_1_100"),
		s.screenshotsDir(1, "q_1_100"),
	} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s to exist", dir)
		}
	}
}

func TestWriteReadSpreadsheet(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)
	if err := s.EnsureJobDirs(1, "q_1_100"); err != nil {
		t.Fatalf("EnsureJobDirs: %v", err)
	}

	table := &Table{
		Header: []string{"Container", "Holds"},
		Rows: [][]string{
			{"CONT1", "NO"},
			{"CONT2", "YES"},
		},
	}
	path := s.AllContainersPath(1, "q_1_100")
	if err := s.WriteSpreadsheet(path, table); err != nil {
		t.Fatalf("WriteSpreadsheet: %v", err)
	}

	got, err := s.ReadSpreadsheet(path)
	if err != nil {
		t.Fatalf("ReadSpreadsheet: %v", err)
	}
	if len(got.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got.Rows))
	}
	if got.Get(0, "Container") != "CONT1" {
		t.Errorf("row 0 Container = %q, want CONT1", got.Get(0, "Container"))
	}
	if got.Get(1, "Holds") != "YES" {
		t.Errorf("row 1 Holds = %q, want YES", got.Get(1, "Holds"))
	}
}

func TestWriteSpreadsheetOverwritesAtomically(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)
	if err := s.EnsureJobDirs(1, "q_1_100"); err != nil {
		t.Fatalf("EnsureJobDirs: %v", err)
	}
	path := s.FilteredContainersPath(1, "q_1_100")

	first := &Table{Header: []string{"A"}, Rows: [][]string{{"1"}}}
	if err := s.WriteSpreadsheet(path, first); err != nil {
		t.Fatalf("first write: %v", err)
	}
	second := &Table{Header: []string{"A"}, Rows: [][]string{{"2"}, {"3"}}}
	if err := s.WriteSpreadsheet(path, second); err != nil {
		t.Fatalf("second write: %v", err)
	}

	got, err := s.ReadSpreadsheet(path)
	if err != nil {
		t.Fatalf("ReadSpreadsheet: %v", err)
	}
	if len(got.Rows) != 2 {
		t.Fatalf("expected overwritten table with 2 rows, got %d", len(got.Rows))
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) != ".xlsx" || strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file not cleaned up: %s", e.Name())
		}
	}
}

func TestProgressRoundTrip(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)
	if err := s.EnsureJobDirs(1, "q_1_100"); err != nil {
		t.Fatalf("EnsureJobDirs: %v", err)
	}

	empty := s.ReadProgress(1, "q_1_100")
	if len(empty) != 0 {
		t.Fatalf("expected empty progress for missing file, got %+v", empty)
	}

	want := Progress{
		"item-1": {Status: ProgressOK, Stage4Epoch: 1700000000},
		"item-2": {Status: ProgressFailed, Stage4Epoch: 1700000010},
	}
	if err := s.WriteProgress(1, "q_1_100", want); err != nil {
		t.Fatalf("WriteProgress: %v", err)
	}

	got := s.ReadProgress(1, "q_1_100")
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	if got["item-1"].Status != ProgressOK {
		t.Errorf("item-1 status = %q, want ok", got["item-1"].Status)
	}
	if got["item-2"].Stage4Epoch != 1700000010 {
		t.Errorf("item-2 epoch = %d, want 1700000010", got["item-2"].Stage4Epoch)
	}
}

func TestReadProgressCorruptFile(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)
	if err := s.EnsureJobDirs(1, "q_1_100"); err != nil {
		t.Fatalf("EnsureJobDirs: %v", err)
	}
	if err := os.WriteFile(s.progressPath(1, "q_1_100"), []byte("not json"), 0o644); err != nil {
		t.Fatalf("writing corrupt file: %v", err)
	}

	got := s.ReadProgress(1, "q_1_100")
	if len(got) != 0 {
		t.Fatalf("expected empty progress for corrupt file, got %+v", got)
	}
}

func TestMirrorContainers(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)
	if err := s.EnsureJobDirs(1, "q_1_100"); err != nil {
		t.Fatalf("EnsureJobDirs: %v", err)
	}

	table := &Table{Header: []string{"A"}, Rows: [][]string{{"x"}}}
	if err := s.WriteSpreadsheet(s.AllContainersPath(1, "q_1_100"), table); err != nil {
		t.Fatalf("WriteSpreadsheet: %v", err)
	}
	if err := s.MirrorContainers(1, "q_1_100"); err != nil {
		t.Fatalf("MirrorContainers: %v", err)
	}

	if _, err := os.Stat(s.MasterContainersPath(1)); err != nil {
		t.Fatalf("expected master mirror to exist: %v", err)
	}
}

func TestZipJob(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)
	if err := s.EnsureJobDirs(1, "q_1_100"); err != nil {
		t.Fatalf("EnsureJobDirs: %v", err)
	}
	if err := s.WriteResponse(1, "q_1_100", "item-1", 1700000000, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}

	var buf bytes.Buffer
	if err := s.ZipJob(&buf, 1, "q_1_100"); err != nil {
		t.Fatalf("ZipJob: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected non-empty zip output")
	}
}
