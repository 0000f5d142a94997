package infra

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	checkExecInterval = 5 * time.Second
)

// MonitorFile signals every time the modification time of path changes.
// The channel is closed when ctx is done.
func MonitorFile(ctx context.Context, path string, interval time.Duration) <-chan struct{} {
	ch := make(chan struct{})
	entry := log.WithFields(log.Fields{"object": "FileMonitor", "path": path})
	var lastTime time.Time
	if stat, err := os.Stat(path); err != nil {
		entry.WithError(err).Warn("cant stat file for monitor")
	} else {
		lastTime = stat.ModTime()
	}

	go func() {
		defer close(ch)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stat, err := os.Stat(path)
				if err != nil {
					entry.WithError(err).Trace("cant stat file for monitor tick")
					continue
				}
				if lastTime.Equal(stat.ModTime()) {
					continue
				}
				lastTime = stat.ModTime()
				select {
				case ch <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch
}

// MonitorExecutable signals once when the running binary is replaced on disk.
func MonitorExecutable(ctx context.Context) <-chan struct{} {
	exeFilename, err := os.Executable()
	if err != nil {
		log.WithError(err).Warn("cant resolve executable path for monitor")
		return make(chan struct{})
	}
	log.Debug(exeFilename)

	ctx, cancel := context.WithCancel(ctx)
	changes := MonitorFile(ctx, exeFilename, checkExecInterval)
	ch := make(chan struct{}, 1)
	go func() {
		defer cancel()
		defer close(ch)
		if _, ok := <-changes; ok {
			ch <- struct{}{}
		}
	}()
	return ch
}
