// Package hub downloads model snapshots from a Hugging Face style hub:
// list the repository file tree, then fetch each file, skipping what is
// already on disk so interrupted downloads resume.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const DefaultEndpoint = "https://huggingface.co"

type Option func(*Downloader)

type Downloader struct {
	endpoint string
	http     *http.Client
}

func NewDownloader(opts ...Option) *Downloader {
	d := &Downloader{
		endpoint: DefaultEndpoint,
		http:     &http.Client{Timeout: 30 * time.Minute},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func WithEndpoint(endpoint string) Option {
	return func(d *Downloader) {
		d.endpoint = endpoint
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(d *Downloader) {
		d.http = httpClient
	}
}

type treeEntry struct {
	Type string `json:"type"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Snapshot mirrors the repository's main revision under dest. Files already
// present with the expected size are skipped. The first failed file aborts
// the snapshot; partially written files never land at their final path.
func (d *Downloader) Snapshot(ctx context.Context, repo, dest string) error {
	entries, err := d.listTree(ctx, repo)
	if err != nil {
		return fmt.Errorf("list files for %s: %w", repo, err)
	}

	files := 0
	for _, e := range entries {
		if e.Type != "file" {
			continue
		}
		files++
		if err := d.fetchFile(ctx, repo, e, dest); err != nil {
			return fmt.Errorf("download %s: %w", e.Path, err)
		}
	}
	if files == 0 {
		return fmt.Errorf("repository %s has no files", repo)
	}
	slog.Info("snapshot complete", "repo", repo, "dest", dest, "files", files)
	return nil
}

func (d *Downloader) listTree(ctx context.Context, repo string) ([]treeEntry, error) {
	treeURL := fmt.Sprintf("%s/api/models/%s/tree/main?recursive=true", d.endpoint, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, treeURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	var entries []treeEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	return entries, nil
}

func (d *Downloader) fetchFile(ctx context.Context, repo string, e treeEntry, dest string) error {
	local := filepath.Join(dest, filepath.FromSlash(e.Path))

	if info, err := os.Stat(local); err == nil && info.Size() == e.Size {
		slog.Info("already downloaded", "file", e.Path)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return err
	}

	fileURL := fmt.Sprintf("%s/%s/resolve/main/%s", d.endpoint, repo, e.Path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return err
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(local), filepath.Base(local)+".part-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if err := os.Rename(tmp.Name(), local); err != nil {
		return err
	}
	slog.Info("downloaded", "file", e.Path, "bytes", written)
	return nil
}
