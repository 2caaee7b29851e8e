package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/solidusdata/feedpipe/internal/feed_service/domain"
	"github.com/solidusdata/feedpipe/internal/platform/storage"
)

const ftpDialTimeout = 30 * time.Second

type ftpConfig struct {
	Host       string `json:"host" validate:"required"`
	Port       int    `json:"port"`
	Username   string `json:"username" validate:"required"`
	Password   string `json:"password" validate:"required"`
	RemotePath string `json:"remote_path"`
}

// FTPHandler uploads the artifact over FTP in binary mode, creating
// missing remote directory segments one level at a time. Any failing
// step aborts the whole attempt; the connection is always closed.
type FTPHandler struct {
	sink   storage.Sink
	logger *slog.Logger
}

func NewFTPHandler(sink storage.Sink, logger *slog.Logger) *FTPHandler {
	return &FTPHandler{sink: sink, logger: logger.With("component", "ftp_handler")}
}

func (h *FTPHandler) Deliver(ctx context.Context, feed *domain.Feed, gen *domain.Generation) domain.DeliveryOutcome {
	var cfg ftpConfig
	if err := json.Unmarshal(feed.DeliveryConfig, &cfg); err != nil {
		return failure(fmt.Errorf("invalid FTP delivery config: %w", err))
	}
	if err := validate.StructCtx(ctx, cfg); err != nil {
		return failure(fmt.Errorf("missing FTP configuration: %w", err))
	}
	if cfg.Port == 0 {
		cfg.Port = 21
	}

	content, err := h.sink.Open(ctx, gen.FilePath)
	if err != nil {
		return failure(fmt.Errorf("reading artifact: %w", err))
	}
	filename := path.Base(gen.FilePath)

	conn, err := ftp.Dial(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(ftpDialTimeout),
	)
	if err != nil {
		return failure(fmt.Errorf("connecting to FTP server: %w", err))
	}
	defer func() {
		if err := conn.Quit(); err != nil {
			h.logger.WarnContext(ctx, "FTP quit failed", "error", err)
		}
	}()

	if err := conn.Login(cfg.Username, cfg.Password); err != nil {
		return failure(fmt.Errorf("FTP login: %w", err))
	}

	if cfg.RemotePath != "" && cfg.RemotePath != "/" {
		if err := conn.ChangeDir(cfg.RemotePath); err != nil {
			h.createPath(ctx, conn, cfg.RemotePath)
			if err := conn.ChangeDir(cfg.RemotePath); err != nil {
				return failure(fmt.Errorf("changing to remote directory %s: %w", cfg.RemotePath, err))
			}
		}
	}

	if err := conn.Stor(filename, bytes.NewReader(content)); err != nil {
		return failure(fmt.Errorf("uploading %s: %w", filename, err))
	}

	remoteFile := path.Join(cfg.RemotePath, filename)
	h.logger.InfoContext(ctx, "Feed delivered by FTP", "feed_id", feed.ID, "generation_id", gen.ID, "host", cfg.Host, "remote_path", remoteFile)
	return domain.DeliveryOutcome{
		Success: true,
		Details: map[string]any{
			"host":        cfg.Host,
			"remote_path": remoteFile,
			"size":        len(content),
		},
	}
}

// createPath makes each directory level of path in turn. Exists errors
// are ignored; a genuinely unusable path surfaces on the ChangeDir that
// follows.
func (h *FTPHandler) createPath(ctx context.Context, conn *ftp.ServerConn, remotePath string) {
	segments := strings.Split(strings.Trim(remotePath, "/"), "/")
	for i := range segments {
		dir := strings.Join(segments[:i+1], "/")
		if err := conn.MakeDir(dir); err != nil {
			h.logger.DebugContext(ctx, "FTP mkdir skipped", "dir", dir, "error", err)
		}
	}
}
