package archive

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "reports", "reports.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestArchiveSaveAndGet(t *testing.T) {
	a := openTestArchive(t)
	completed := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	if err := a.SaveReport("r1", "solid state batteries", "gpt-5", "# Findings", completed); err != nil {
		t.Fatal(err)
	}
	got, err := a.Get("r1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "solid state batteries" || got.Model != "gpt-5" || got.Report != "# Findings" {
		t.Errorf("unexpected report %+v", got)
	}
	if !got.CompletedAt.Equal(completed) {
		t.Errorf("expected completion time preserved, got %v", got.CompletedAt)
	}
}

func TestArchiveUpsert(t *testing.T) {
	a := openTestArchive(t)
	completed := time.Now().Truncate(time.Second)

	if err := a.SaveReport("r1", "t", "m", "draft", completed); err != nil {
		t.Fatal(err)
	}
	if err := a.SaveReport("r1", "t", "m", "final", completed); err != nil {
		t.Fatal(err)
	}
	reports, err := a.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 {
		t.Fatalf("re-archiving must not duplicate rows, got %d", len(reports))
	}
	if reports[0].Report != "final" {
		t.Errorf("expected latest report kept, got %q", reports[0].Report)
	}
}

func TestArchiveListOrder(t *testing.T) {
	a := openTestArchive(t)
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	a.SaveReport("old", "old", "m", "r", base)
	a.SaveReport("new", "new", "m", "r", base.Add(time.Hour))
	a.SaveReport("mid", "mid", "m", "r", base.Add(time.Minute))

	reports, err := a.List()
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, r := range reports {
		ids = append(ids, r.ResearchID)
	}
	want := []string{"new", "mid", "old"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, ids)
		}
	}
}
