package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/solidusdata/feedpipe/internal/feed_service/domain"
	"github.com/solidusdata/feedpipe/internal/platform/storage"
)

const sshDialTimeout = 30 * time.Second

type sftpConfig struct {
	Host           string `json:"host" validate:"required"`
	Port           int    `json:"port"`
	Username       string `json:"username" validate:"required"`
	Password       string `json:"password"`
	PrivateKeyPath string `json:"private_key_path"`
	RemotePath     string `json:"remote_path"`
}

// SFTPHandler uploads the artifact over an SSH session. Key
// authentication takes precedence when both a key and a password are
// configured; missing remote directories are created recursively; the
// session is torn down on both success and failure paths.
type SFTPHandler struct {
	sink   storage.Sink
	logger *slog.Logger
}

func NewSFTPHandler(sink storage.Sink, logger *slog.Logger) *SFTPHandler {
	return &SFTPHandler{sink: sink, logger: logger.With("component", "sftp_handler")}
}

func (h *SFTPHandler) Deliver(ctx context.Context, feed *domain.Feed, gen *domain.Generation) domain.DeliveryOutcome {
	var cfg sftpConfig
	if err := json.Unmarshal(feed.DeliveryConfig, &cfg); err != nil {
		return failure(fmt.Errorf("invalid SFTP delivery config: %w", err))
	}
	if err := validate.StructCtx(ctx, cfg); err != nil {
		return failure(fmt.Errorf("missing SFTP configuration: %w", err))
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}

	auth, err := h.authMethod(cfg)
	if err != nil {
		return failure(err)
	}

	content, err := h.sink.Open(ctx, gen.FilePath)
	if err != nil {
		return failure(fmt.Errorf("reading artifact: %w", err))
	}
	filename := path.Base(gen.FilePath)

	sshConfig := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         sshDialTimeout,
	}

	conn, err := ssh.Dial("tcp", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), sshConfig)
	if err != nil {
		return failure(fmt.Errorf("connecting to SFTP server: %w", err))
	}
	defer conn.Close()

	client, err := sftp.NewClient(conn)
	if err != nil {
		return failure(fmt.Errorf("opening SFTP session: %w", err))
	}
	defer client.Close()

	remoteFile := filename
	if cfg.RemotePath != "" && cfg.RemotePath != "/" {
		if err := client.MkdirAll(cfg.RemotePath); err != nil {
			return failure(fmt.Errorf("creating remote directory %s: %w", cfg.RemotePath, err))
		}
		remoteFile = path.Join(cfg.RemotePath, filename)
	}

	f, err := client.Create(remoteFile)
	if err != nil {
		return failure(fmt.Errorf("creating remote file %s: %w", remoteFile, err))
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return failure(fmt.Errorf("writing remote file %s: %w", remoteFile, err))
	}
	if err := f.Close(); err != nil {
		return failure(fmt.Errorf("closing remote file %s: %w", remoteFile, err))
	}

	h.logger.InfoContext(ctx, "Feed delivered by SFTP", "feed_id", feed.ID, "generation_id", gen.ID, "host", cfg.Host, "remote_path", remoteFile)
	return domain.DeliveryOutcome{
		Success: true,
		Details: map[string]any{
			"host":        cfg.Host,
			"remote_path": remoteFile,
			"size":        len(content),
		},
	}
}

// authMethod picks key auth over password when both are configured.
func (h *SFTPHandler) authMethod(cfg sftpConfig) (ssh.AuthMethod, error) {
	if cfg.PrivateKeyPath != "" {
		keyBytes, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		return ssh.PublicKeys(signer), nil
	}
	if cfg.Password != "" {
		return ssh.Password(cfg.Password), nil
	}
	return nil, fmt.Errorf("no authentication method provided")
}
