package delivery

import (
	"context"
	"log/slog"

	"github.com/solidusdata/feedpipe/internal/feed_service/domain"
)

// DownloadHandler performs no transmission: the artifact already resides
// in shared storage, so it only marks the generation ready for pull.
type DownloadHandler struct {
	logger *slog.Logger
}

func NewDownloadHandler(logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{logger: logger.With("component", "download_handler")}
}

func (h *DownloadHandler) Deliver(ctx context.Context, feed *domain.Feed, gen *domain.Generation) domain.DeliveryOutcome {
	h.logger.InfoContext(ctx, "Artifact marked ready for download", "feed_id", feed.ID, "generation_id", gen.ID)
	return domain.DeliveryOutcome{
		Success: true,
		Details: map[string]any{
			"method":             "download",
			"file_path":          gen.FilePath,
			"ready_for_download": true,
		},
	}
}
