package bot

import (
	"context"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iamwavecut/strikeguard/internal/infra"
)

const (
	pollTimeoutSeconds = 60
	retryDelay         = 3 * time.Second
)

// Poller long-polls Telegram and feeds every update to the processor.
// Updates are handled concurrently, at most `workers` at a time.
type Poller struct {
	source    UpdatesSource
	processor *UpdateProcessor
	workers   int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(source UpdatesSource, processor *UpdateProcessor, workers int) *Poller {
	if workers <= 0 {
		workers = 1
	}
	return &Poller{source: source, processor: processor, workers: workers}
}

func (p *Poller) getLogEntry() *log.Entry {
	return log.WithField("object", "Poller")
}

func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	p.cancel, p.done = cancel, done

	go infra.GoRecoverable(3, "poller", func() {
		p.run(runCtx)
		close(done)
	})
	return nil
}

func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
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

func (p *Poller) run(ctx context.Context) {
	entry := p.getLogEntry()
	workers := &errgroup.Group{}
	workers.SetLimit(p.workers)
	defer func() { _ = workers.Wait() }()

	config := api.NewUpdate(0)
	config.Timeout = pollTimeoutSeconds
	config.AllowedUpdates = []string{"message", "edited_message"}

	for ctx.Err() == nil {
		updates, errs := GetUpdatesChans(ctx, p.source, config, p.workers)
		for update := range updates {
			u := update
			config.Offset = u.UpdateID + 1
			workers.Go(func() error {
				err := infra.SafeCall("update", func() error {
					return p.processor.Process(ctx, &u)
				})
				if err != nil {
					entry.WithError(err).WithField("update_id", u.UpdateID).Error("update processing failed")
				}
				return nil
			})
		}
		if err := <-errs; err != nil && ctx.Err() == nil {
			entry.WithError(err).Warn("polling failed, retrying")
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
			}
		}
	}
	entry.Debug("poller stopped")
}
