// Package media downloads message attachments into tenant-isolated storage.
package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/MaximushkaBed/telegram-sales-parser/internal/queue"
)

// FileResolver resolves an opaque file reference to a retrievable URL.
// Resolution is a separate network call from the download itself, so
// failures at either stage are reported independently.
type FileResolver interface {
	ResolveFileURL(ctx context.Context, fileID string) (string, error)
}

// Fetcher stores attachments under
// {ownerId}/{conversationId}/{externalMessageId}/media_{n}{ext}, relative
// to its base directory. The owner id in the path is what keeps tenants
// from ever colliding on a storage location.
type Fetcher struct {
	resolver   FileResolver
	httpClient *http.Client
	baseDir    string
	log        *slog.Logger
}

// NewFetcher creates a Fetcher rooted at baseDir. downloadTimeout bounds
// each resolve-and-download attempt.
func NewFetcher(resolver FileResolver, baseDir string, downloadTimeout time.Duration, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Fetcher{
		resolver:   resolver,
		httpClient: &http.Client{Timeout: downloadTimeout},
		baseDir:    baseDir,
		log:        log.With("component", "media_fetcher"),
	}
}

// Save downloads the given attachments for one message and returns the
// relative storage path of the last stored file, or "" when there were no
// attachments or none could be stored. Each attachment is attempted
// independently; failures are logged and skipped, never propagated. No
// attachments means no network call at all.
func (f *Fetcher) Save(ctx context.Context, ownerID, chatID, messageID int64, attachments []queue.Attachment) string {
	if len(attachments) == 0 {
		return ""
	}

	log := f.log.With("owner_id", ownerID, "chat_id", chatID, "message_id", messageID)

	var savedPath string
	for i, att := range attachments {
		// Index starts at 1, matching the storage path contract.
		relPath := fmt.Sprintf("%d/%d/%d/media_%d%s", ownerID, chatID, messageID, i+1, att.Extension)

		if err := f.saveOne(ctx, att.FileID, relPath); err != nil {
			log.WarnContext(ctx, "Failed to save attachment, skipping", "file_id", att.FileID, "error", err)
			continue
		}

		log.DebugContext(ctx, "Attachment saved", "path", relPath)
		savedPath = relPath
	}

	return savedPath
}

func (f *Fetcher) saveOne(ctx context.Context, fileID, relPath string) error {
	url, err := f.resolver.ResolveFileURL(ctx, fileID)
	if err != nil {
		return fmt.Errorf("resolving file locator: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating download request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading file: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected download status code: %d", resp.StatusCode)
	}

	fullPath := filepath.Join(f.baseDir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("creating storage directory: %w", err)
	}

	out, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("creating storage file: %w", err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(fullPath)
		return fmt.Errorf("streaming file to disk: %w", err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("closing storage file: %w", err)
	}
	return nil
}
