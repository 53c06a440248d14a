package media_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MaximushkaBed/telegram-sales-parser/internal/media"
	"github.com/MaximushkaBed/telegram-sales-parser/internal/queue"
)

type stubResolver struct {
	baseURL string
	err     error
	calls   int
}

func (r *stubResolver) ResolveFileURL(_ context.Context, fileID string) (string, error) {
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return r.baseURL + "/" + fileID, nil
}

func TestFetcher_Save(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			fmt.Fprintf(w, "content of %s", r.URL.Path)
		}
	}))
	t.Cleanup(srv.Close)

	t.Run("Stores attachment under tenant path", func(t *testing.T) {
		t.Parallel()

		baseDir := t.TempDir()
		f := media.NewFetcher(&stubResolver{baseURL: srv.URL}, baseDir, 5*time.Second, nil)

		got := f.Save(context.Background(), 42, -100123, 777, []queue.Attachment{
			{FileID: "photo-abc", Extension: ".jpg"},
		})

		want := "42/-100123/777/media_1.jpg"
		if got != want {
			t.Fatalf("Save returned path %q, want %q", got, want)
		}

		data, err := os.ReadFile(filepath.Join(baseDir, filepath.FromSlash(want)))
		if err != nil {
			t.Fatalf("reading stored file: %v", err)
		}
		if string(data) != "content of /photo-abc" {
			t.Errorf("stored content = %q", data)
		}
	})

	t.Run("Numbers multiple attachments from one", func(t *testing.T) {
		t.Parallel()

		baseDir := t.TempDir()
		f := media.NewFetcher(&stubResolver{baseURL: srv.URL}, baseDir, 5*time.Second, nil)

		got := f.Save(context.Background(), 1, 2, 3, []queue.Attachment{
			{FileID: "first", Extension: ".jpg"},
			{FileID: "second", Extension: ".mp4"},
		})

		if got != "1/2/3/media_2.mp4" {
			t.Fatalf("Save returned path %q, want last stored attachment path", got)
		}
		for _, rel := range []string{"1/2/3/media_1.jpg", "1/2/3/media_2.mp4"} {
			if _, err := os.Stat(filepath.Join(baseDir, filepath.FromSlash(rel))); err != nil {
				t.Errorf("expected stored file %s: %v", rel, err)
			}
		}
	})

	t.Run("Skips failed attachment but keeps the rest", func(t *testing.T) {
		t.Parallel()

		baseDir := t.TempDir()
		f := media.NewFetcher(&stubResolver{baseURL: srv.URL}, baseDir, 5*time.Second, nil)

		got := f.Save(context.Background(), 7, 8, 9, []queue.Attachment{
			{FileID: "ok", Extension: ".jpg"},
			{FileID: "missing", Extension: ".bin"},
		})

		// The second download failed, so the first path stands.
		if got != "7/8/9/media_1.jpg" {
			t.Fatalf("Save returned path %q, want surviving attachment path", got)
		}
		if _, err := os.Stat(filepath.Join(baseDir, "7/8/9/media_2.bin")); !os.IsNotExist(err) {
			t.Errorf("failed attachment should not leave a file, stat err = %v", err)
		}
	})

	t.Run("Resolver failure yields empty path", func(t *testing.T) {
		t.Parallel()

		f := media.NewFetcher(&stubResolver{err: errors.New("no such file")}, t.TempDir(), 5*time.Second, nil)

		got := f.Save(context.Background(), 1, 1, 1, []queue.Attachment{{FileID: "x", Extension: ".jpg"}})
		if got != "" {
			t.Errorf("Save = %q, want empty path on resolver failure", got)
		}
	})

	t.Run("No attachments makes no network calls", func(t *testing.T) {
		t.Parallel()

		resolver := &stubResolver{baseURL: srv.URL}
		f := media.NewFetcher(resolver, t.TempDir(), 5*time.Second, nil)

		if got := f.Save(context.Background(), 1, 1, 1, nil); got != "" {
			t.Errorf("Save = %q, want empty path", got)
		}
		if resolver.calls != 0 {
			t.Errorf("resolver called %d times, want 0", resolver.calls)
		}
	})
}
