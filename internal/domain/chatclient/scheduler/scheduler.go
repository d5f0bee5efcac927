package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Loader refreshes the client caches
type Loader interface {
	LoadConversations(ctx context.Context) error
	LoadMessages(ctx context.Context, conversationID string) error
}

// Config holds polling intervals
type Config struct {
	ConversationInterval time.Duration
	MessageInterval      time.Duration
}

type watch struct {
	conversationID string
	cancel         context.CancelFunc
	done           chan struct{}
}

// Poller refreshes the conversation list and the watched conversation's messages on fixed intervals
type Poller struct {
	loader               Loader
	conversationInterval time.Duration
	messageInterval      time.Duration
	logger               *slog.Logger

	stopCh  chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc // Cancel function to stop in-flight requests
	wg      sync.WaitGroup
	running bool
	watch   *watch
	mu      sync.Mutex
	watchMu sync.Mutex // serializes Watch and Unwatch
}

// New creates a new Poller
func New(loader Loader, cfg Config, logger *slog.Logger) *Poller {
	if cfg.ConversationInterval == 0 {
		cfg.ConversationInterval = 10 * time.Second
	}
	if cfg.MessageInterval == 0 {
		cfg.MessageInterval = 3 * time.Second
	}

	return &Poller{
		loader:               loader,
		conversationInterval: cfg.ConversationInterval,
		messageInterval:      cfg.MessageInterval,
		logger:               logger,
	}
}

// Start starts polling the conversation list
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.ctx, p.cancel = context.WithCancel(ctx)
	ctx = p.ctx
	stopCh := p.stopCh
	p.mu.Unlock()

	p.logger.Info("poller started", "conversation_interval", p.conversationInterval, "message_interval", p.messageInterval)

	p.wg.Add(1)
	go p.pollConversations(ctx, stopCh)
}

// Stop stops all polling and waits for the loops to exit
func (p *Poller) Stop() {
	p.Unwatch()

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	stopCh := p.stopCh
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	close(stopCh)
	p.wg.Wait()
	p.logger.Info("poller stopped")
}

// Watch polls the messages of conversationID, replacing any previously watched conversation.
// It does nothing while the poller is stopped.
func (p *Poller) Watch(conversationID string) {
	p.watchMu.Lock()
	defer p.watchMu.Unlock()

	p.unwatchLocked()

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}

	ctx, cancel := context.WithCancel(p.ctx)
	w := &watch{conversationID: conversationID, cancel: cancel, done: make(chan struct{})}
	p.watch = w

	p.wg.Add(1)
	go p.pollMessages(ctx, w)
}

// Unwatch stops polling messages. No message fetch is issued after it returns.
func (p *Poller) Unwatch() {
	p.watchMu.Lock()
	defer p.watchMu.Unlock()
	p.unwatchLocked()
}

// Watching returns the watched conversation id, or "" when none
func (p *Poller) Watching() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watch == nil {
		return ""
	}
	return p.watch.conversationID
}

func (p *Poller) unwatchLocked() {
	p.mu.Lock()
	w := p.watch
	p.watch = nil
	p.mu.Unlock()

	if w == nil {
		return
	}
	w.cancel()
	<-w.done
}

// pollConversations is the conversation list loop
func (p *Poller) pollConversations(ctx context.Context, stopCh chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.conversationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.loader.LoadConversations(ctx); err != nil {
				p.logger.Debug("conversation poll failed", "error", err)
			}
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// pollMessages is the message loop of one watched conversation
func (p *Poller) pollMessages(ctx context.Context, w *watch) {
	defer p.wg.Done()
	defer close(w.done)

	ticker := time.NewTicker(p.messageInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.loader.LoadMessages(ctx, w.conversationID); err != nil {
				p.logger.Debug("message poll failed", "conversation_id", w.conversationID, "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
