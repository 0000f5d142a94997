package config

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/strikeguard/internal/infra"
)

// RulesWatcher reloads the rules file whenever it changes on disk.
// A file that fails to parse or validate is logged and ignored.
type RulesWatcher struct {
	path     string
	interval time.Duration
	holder   *RulesHolder
	onReload func(accepted bool)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRulesWatcher(path string, interval time.Duration, holder *RulesHolder) *RulesWatcher {
	return &RulesWatcher{
		path:     path,
		interval: interval,
		holder:   holder,
	}
}

// OnReload registers fn to observe every reload attempt. Call before Start.
func (w *RulesWatcher) OnReload(fn func(accepted bool)) {
	w.onReload = fn
}

func (w *RulesWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil || w.path == "" {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel
	w.done = make(chan struct{})
	changes := infra.MonitorFile(runCtx, w.path, w.interval)

	go func() {
		defer close(w.done)
		for range changes {
			w.Reload()
		}
	}()
	return nil
}

func (w *RulesWatcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reload reads the file once and publishes it when valid.
func (w *RulesWatcher) Reload() bool {
	accepted := w.reload()
	if w.onReload != nil {
		w.onReload(accepted)
	}
	return accepted
}

func (w *RulesWatcher) reload() bool {
	entry := w.getLogEntry()
	rules, err := LoadRulesFile(w.path)
	if err != nil {
		entry.WithError(err).Warn("rules rejected, keeping last known good")
		return false
	}
	if err := w.holder.Store(rules); err != nil {
		entry.WithError(err).Warn("rules rejected, keeping last known good")
		return false
	}
	entry.WithFields(log.Fields{
		"warn_threshold": rules.WarnThreshold,
		"hard_threshold": rules.HardActionThreshold,
		"keywords":       len(rules.SpamKeywords),
	}).Info("rules reloaded")
	return true
}

func (w *RulesWatcher) getLogEntry() *log.Entry {
	return log.WithFields(log.Fields{"object": "RulesWatcher", "path": w.path})
}
