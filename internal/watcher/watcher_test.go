package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	splits []string
}

func (r *recorder) onChange(split string) {
	r.mu.Lock()
	r.splits = append(r.splits, split)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.splits...)
}

// waitFor polls until cond holds or the timeout elapses.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestWatcher_DebouncesBurstPerSplit(t *testing.T) {
	base := t.TempDir()
	train := filepath.Join(base, "train")
	test := filepath.Join(base, "test")
	rec := &recorder{}
	w := NewWatcher(map[string]string{"train": train, "test": test}, []string{".png"}, rec.onChange,
		WithDebounce(150*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	for _, name := range []string{"a.png", "b.png", "c.png"} {
		if err := writeFile(filepath.Join(train, name), "x"); err != nil {
			t.Fatal(err)
		}
	}
	if !waitFor(3*time.Second, func() bool { return len(rec.snapshot()) >= 1 }) {
		t.Fatal("expected a rebuild callback for train")
	}
	time.Sleep(300 * time.Millisecond)
	got := rec.snapshot()
	if len(got) != 1 || got[0] != "train" {
		t.Errorf("expected exactly one train callback, got %v", got)
	}
}

func TestWatcher_IgnoresOtherExtensions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "val")
	rec := &recorder{}
	w := NewWatcher(map[string]string{"val": dir}, []string{".jpg"}, rec.onChange,
		WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := writeFile(filepath.Join(dir, "notes.txt"), "skip"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("expected no callbacks, got %v", got)
	}
}

func TestWatcher_RemoveTriggersRebuild(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "train")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "gone.jpg")
	if err := writeFile(path, "x"); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	w := NewWatcher(map[string]string{"train": dir}, []string{".jpg"}, rec.onChange,
		WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if !waitFor(3*time.Second, func() bool { return len(rec.snapshot()) == 1 }) {
		t.Errorf("expected one callback after remove, got %v", rec.snapshot())
	}
}

func TestWatcher_Start_createsMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "images", "train")
	w := NewWatcher(map[string]string{"train": dir}, nil, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("directory should exist after Start: %v", err)
	}
	dirs := w.Directories()
	if len(dirs) != 1 || dirs[0] != filepath.Clean(dir) {
		t.Errorf("Directories() = %v", dirs)
	}
}

func TestWatcher_StopDropsPending(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "train")
	rec := &recorder{}
	w := NewWatcher(map[string]string{"train": dir}, nil, rec.onChange, WithDebounce(200*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.schedule("train")
	w.Stop()
	w.Stop()
	time.Sleep(350 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("pending rebuild should be dropped on Stop, got %v", got)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.jpg", []string{".jpg"}, true},
		{"/a/b.JPG", []string{"jpg"}, true},
		{"/a/b.png", []string{".jpg"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{}, true},
	}
	for _, tt := range tests {
		got := matchExtension(tt.path, tt.extensions)
		if got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestSplitFor_onlyDirectChildren(t *testing.T) {
	w := NewWatcher(map[string]string{"train": "/data/train"}, nil, nil)
	if s, ok := w.splitFor("/data/train/a.jpg"); !ok || s != "train" {
		t.Errorf("splitFor direct child = %q, %v", s, ok)
	}
	if _, ok := w.splitFor("/data/train/sub/a.jpg"); ok {
		t.Error("nested files should not map to a split")
	}
	if _, ok := w.splitFor("/data/other/a.jpg"); ok {
		t.Error("unrelated files should not map to a split")
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
