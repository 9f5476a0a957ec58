package logger

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

func readLogDir(t *testing.T, dir string) map[string]string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatal(err)
		}
		out[e.Name()] = string(data)
	}
	return out
}

func TestRecordFormat(t *testing.T) {
	dir := t.TempDir()
	l, err := New(LevelDebug, dir, ".log", 0)
	if err != nil {
		t.Fatal(err)
	}
	l.Infof("client[%d] in", 7)
	l.Close()

	files := readLogDir(t, dir)
	if len(files) != 1 {
		t.Fatalf("got %d files, want 1", len(files))
	}
	for name, content := range files {
		wantName := time.Now().Format("2006_01_02") + ".log"
		if name != wantName {
			t.Errorf("file name = %q, want %q", name, wantName)
		}
		re := regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{6} \[info\] : client\[7\] in\n$`)
		if !re.MatchString(content) {
			t.Errorf("record = %q does not match format", content)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	l, err := New(LevelWarn, dir, ".log", 0)
	if err != nil {
		t.Fatal(err)
	}
	l.Debugf("dropped")
	l.Infof("dropped")
	l.Warnf("kept")
	l.Errorf("kept")
	l.Close()

	for _, content := range readLogDir(t, dir) {
		if strings.Contains(content, "dropped") {
			t.Errorf("low-level record not dropped: %q", content)
		}
		if got := strings.Count(content, "kept"); got != 2 {
			t.Errorf("kept records = %d, want 2", got)
		}
	}
}

func TestSetLevel(t *testing.T) {
	dir := t.TempDir()
	l, err := New(LevelError, dir, ".log", 0)
	if err != nil {
		t.Fatal(err)
	}
	l.Infof("before")
	l.SetLevel(LevelInfo)
	if l.GetLevel() != LevelInfo {
		t.Errorf("GetLevel = %d, want %d", l.GetLevel(), LevelInfo)
	}
	l.Infof("after")
	l.Close()

	for _, content := range readLogDir(t, dir) {
		if strings.Contains(content, "before") {
			t.Errorf("record emitted below level: %q", content)
		}
		if !strings.Contains(content, "after") {
			t.Errorf("record missing after SetLevel: %q", content)
		}
	}
}

func TestLineCountRotation(t *testing.T) {
	dir := t.TempDir()
	l, err := New(LevelInfo, dir, ".log", 0)
	if err != nil {
		t.Fatal(err)
	}
	l.maxLines = 3
	for i := 0; i < 7; i++ {
		l.Infof("line %d", i)
	}
	l.Close()

	files := readLogDir(t, dir)
	// 3 lines, then parts 1 and 2.
	if len(files) != 3 {
		t.Fatalf("got %d files %v, want 3", len(files), files)
	}
	day := time.Now().Format("2006_01_02")
	for _, name := range []string{day + ".log", day + "-1.log", day + "-2.log"} {
		if _, ok := files[name]; !ok {
			t.Errorf("missing rolled file %q", name)
		}
	}
}

func TestAsyncDrainOnClose(t *testing.T) {
	dir := t.TempDir()
	l, err := New(LevelInfo, dir, ".log", 128)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		l.Infof("record %d", i)
	}
	l.Close()

	total := 0
	for _, content := range readLogDir(t, dir) {
		total += strings.Count(content, "record ")
	}
	if total != 100 {
		t.Errorf("drained records = %d, want 100", total)
	}
}

func TestQueueFullFallsBackToSync(t *testing.T) {
	dir := t.TempDir()
	l, err := New(LevelInfo, dir, ".log", 1)
	if err != nil {
		t.Fatal(err)
	}
	// A tiny queue with a busy writer cannot accept every record, yet
	// none may be lost: overflow goes through the synchronous path.
	for i := 0; i < 200; i++ {
		l.Infof("record %d", i)
	}
	l.Close()

	total := 0
	for _, content := range readLogDir(t, dir) {
		total += strings.Count(content, "record ")
	}
	if total != 200 {
		t.Errorf("records on disk = %d, want 200", total)
	}
}

func TestLogAfterCloseIsDropped(t *testing.T) {
	dir := t.TempDir()
	l, err := New(LevelInfo, dir, ".log", 8)
	if err != nil {
		t.Fatal(err)
	}
	l.Close()
	l.Infof("late") // must not panic or write
	for _, content := range readLogDir(t, dir) {
		if strings.Contains(content, "late") {
			t.Errorf("record written after Close: %q", content)
		}
	}
}
