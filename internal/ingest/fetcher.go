package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"
)

// FileResolver resolves a remote file id into a download URL through the bot
// connection's metadata call.
type FileResolver interface {
	FileURL(ctx context.Context, fileID string) (string, error)
}

// Storage persists fetched bytes under a flat key namespace and maps keys to
// public-relative paths.
type Storage interface {
	Put(ctx context.Context, key string, reader io.Reader) error
	Delete(ctx context.Context, key string) error
	AccessPath(key string) string
}

// Fetcher downloads remote media files into local storage. Each Fetch is
// independent; concurrent invocations share nothing but the storage
// namespace, and generated keys never collide.
type Fetcher struct {
	resolver FileResolver
	storage  Storage
	client   *http.Client
	logger   *slog.Logger
}

// NewFetcher creates a media fetcher. A nil client falls back to a default
// with a sane timeout.
func NewFetcher(log *slog.Logger, resolver FileResolver, storage Storage, client *http.Client) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Fetcher{
		resolver: resolver,
		storage:  storage,
		client:   client,
		logger:   log.With(slog.String("service", "media_fetcher")),
	}
}

// Fetch resolves the attachment's download URL, streams the bytes into
// storage under a unique name, and returns the public-relative path. On any
// failure partially written data is removed before the error is returned.
func (f *Fetcher) Fetch(ctx context.Context, att Attachment) (string, error) {
	fileURL, err := f.resolver.FileURL(ctx, att.FileID)
	if err != nil {
		return "", fmt.Errorf("resolve file url: %w", err)
	}
	key := fileKey(fileURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download file: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download file: unexpected status %d", resp.StatusCode)
	}

	if err := f.storage.Put(ctx, key, resp.Body); err != nil {
		// Put removes its own partial writes; Delete covers providers
		// that cannot.
		_ = f.storage.Delete(ctx, key)
		return "", fmt.Errorf("store file: %w", err)
	}

	public := f.storage.AccessPath(key)
	f.logger.Debug("media stored",
		slog.String("file_id", att.FileID),
		slog.String("path", public),
	)
	return public, nil
}

// fileKey derives a collision-resistant storage key, preserving the remote
// file's extension when it has one.
func fileKey(fileURL string) string {
	ext := ".jpg"
	if u, err := url.Parse(fileURL); err == nil {
		if e := path.Ext(u.Path); e != "" {
			ext = e
		}
	}
	return fmt.Sprintf("image-%d-%s%s", time.Now().UnixNano(), uuid.NewString(), ext)
}
