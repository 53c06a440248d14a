package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
)

// FileResolver resolves Telegram file ids to download URLs through the
// Bot API getFile call. It satisfies media.FileResolver.
type FileResolver struct {
	bot   *bot.Bot
	token string
}

// NewFileResolver creates a FileResolver for the given bot instance.
func NewFileResolver(b *bot.Bot, token string) *FileResolver {
	return &FileResolver{bot: b, token: token}
}

// ResolveFileURL exchanges an opaque file id for a retrievable URL. This is
// a distinct network call from the download itself, so a failure here is
// reported independently of download failures.
func (r *FileResolver) ResolveFileURL(ctx context.Context, fileID string) (string, error) {
	if fileID == "" {
		return "", fmt.Errorf("empty file id")
	}

	fileObj, err := r.bot.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("failed to get file info from Telegram: %w", err)
	}
	if fileObj.FilePath == "" {
		return "", fmt.Errorf("empty file path returned from Telegram for file id %s", fileID)
	}

	return fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", r.token, fileObj.FilePath), nil
}
