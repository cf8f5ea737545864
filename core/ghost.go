package core

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ghostDriver periodically submits genesis-signed no-op transactions so
// pending transactions accumulate confirmations even when user traffic is
// idle. It is an owned goroutine with cooperative cancellation and a
// joinable lifecycle, in place of the source implementation's daemon-thread
// idiom.
type ghostDriver struct {
	engine   *Engine
	interval time.Duration
	logger   *logrus.Entry

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newGhostDriver(e *Engine, interval time.Duration) *ghostDriver {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &ghostDriver{
		engine:   e,
		interval: interval,
		logger:   logrus.New().WithField("component", "ghost"),
	}
}

func (g *ghostDriver) start() {
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.wg.Add(1)
	go g.run(ctx)
}

// stop cancels the driver and blocks until its goroutine has exited.
func (g *ghostDriver) stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.wg.Wait()
}

func (g *ghostDriver) run(ctx context.Context) {
	defer g.wg.Done()
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		g.tick()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick builds, signs, and submits a ghost transaction, then checkpoints
// the DAG. A checkpoint write failure is logged and retried on the next
// tick — in-memory state remains authoritative.
func (g *ghostDriver) tick() {
	e := g.engine
	txc := TransactionCreate{
		Sender:    e.genesisPublic,
		Recipient: e.genesisPublic,
		Kind:      KindCall,
		Payload:   Payload{Blob: []byte{}},
		Created:   time.Now(),
	}
	tx := &Transaction{TransactionCreate: txc}
	if err := tx.sign(e.genesisSecret); err != nil {
		g.logger.Errorf("failed to sign ghost transaction: %v", err)
		return
	}

	e.mu.Lock()
	accepted := e.submitLocked(tx.TransactionCreate)
	if !accepted {
		g.logger.Warnf("ghost transaction rejected")
	}
	err := e.saveCheckpoint()
	e.mu.Unlock()

	if err != nil {
		g.logger.Errorf("checkpoint failed, will retry next tick: %v", err)
	}
}
