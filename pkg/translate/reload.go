package translate

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/chatbroker/chatbroker/pkg/config"
	"github.com/chatbroker/chatbroker/pkg/httpclient"
)

const reloadDebounce = 100 * time.Millisecond

// WatchEndpointsFile hot-reloads the cascade's endpoint list from
// path whenever it changes on disk, so operators can rotate dead
// translation endpoints without a restart. Returns immediately; the
// watch loop runs until ctx is cancelled. A missing or unreadable path
// is a no-op, not an error — the file is optional.
func WatchEndpointsFile(ctx context.Context, path string, cascade *Cascade, client *httpclient.Client, logger *slog.Logger) {
	if path == "" {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	loadAndApply(path, cascade, client, logger)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("translate: could not start endpoint file watcher", "error", err)
		return
	}

	dir := filepath.Dir(path)
	file := filepath.Base(path)
	if err := watcher.Add(dir); err != nil {
		logger.Warn("translate: could not watch endpoint file directory", "path", dir, "error", err)
		watcher.Close()
		return
	}

	go watchLoop(ctx, watcher, path, file, cascade, client, logger)
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path, file string, cascade *Cascade, client *httpclient.Client, logger *slog.Logger) {
	defer watcher.Close()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != file {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				loadAndApply(path, cascade, client, logger)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("translate: endpoint file watcher error", "error", err)
		}
	}
}

func loadAndApply(path string, cascade *Cascade, client *httpclient.Client, logger *slog.Logger) {
	urls, err := readEndpointFile(path)
	if err != nil {
		logger.Warn("translate: failed to read endpoint file, keeping current endpoints", "path", path, "error", err)
		return
	}
	if len(urls) == 0 {
		return
	}
	cascade.SetEndpoints(urls, config.DeriveDetectEndpoints(urls), client)
	logger.Info("translate: reloaded endpoints", "path", path, "count", len(urls))
}

// readEndpointFile parses one URL per line, ignoring blank lines and
// "#"-prefixed comments.
func readEndpointFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}
