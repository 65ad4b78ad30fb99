/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package reconciler

import (
	"context"
	"sync"
	"time"

	"settlement-bridge-go/internal/models"

	"go.uber.org/zap"
)

// UnconfirmedLister is the indexer query the sweeper needs on top of the
// point reads.
type UnconfirmedLister interface {
	ListUnconfirmedPurchases(ctx context.Context, createdBefore time.Time, first int) ([]models.PurchaseRecord, error)
}

// Sweeper periodically re-drives purchases whose confirmation never
// completed: a crashed server, an exhausted retry budget, or a payout
// outage all leave unconfirmed purchases behind, and the sweeper picks them
// up. The grace window keeps it from racing the synchronous confirmation
// path for fresh purchases.
type Sweeper struct {
	reconciler      *Service
	lister          UnconfirmedLister
	pollingInterval time.Duration
	graceWindow     time.Duration
	batchSize       int

	stopChan chan struct{}
	doneChan chan struct{}
}

func NewSweeper(svc *Service, lister UnconfirmedLister, cfg models.SweeperConfig) *Sweeper {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	return &Sweeper{
		reconciler:      svc,
		lister:          lister,
		pollingInterval: cfg.PollingInterval,
		graceWindow:     cfg.GraceWindow,
		batchSize:       batch,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	zap.L().Info("Starting settlement sweeper",
		zap.Duration("polling_interval", s.pollingInterval),
		zap.Duration("grace_window", s.graceWindow))
	go s.pollLoop(ctx)
}

// Stop gracefully stops the sweeper.
func (s *Sweeper) Stop() {
	zap.L().Info("Stopping settlement sweeper")
	close(s.stopChan)
	<-s.doneChan
	zap.L().Info("Settlement sweeper stopped")
}

func (s *Sweeper) pollLoop(ctx context.Context) {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.pollingInterval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sweep confirms every stale unconfirmed purchase. Sagas for different ids
// are independent, so they run in parallel; the payout keys prevent any
// overlap with a concurrently running synchronous confirmation.
func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.graceWindow)

	records, err := s.lister.ListUnconfirmedPurchases(ctx, cutoff, s.batchSize)
	if err != nil {
		zap.L().Error("Failed to list unconfirmed purchases", zap.Error(err))
		return
	}
	if len(records) == 0 {
		return
	}

	zap.L().Info("Sweeping unconfirmed purchases",
		zap.Int("count", len(records)),
		zap.Time("cutoff", cutoff))

	var wg sync.WaitGroup
	for _, record := range records {
		wg.Add(1)

		go func(rec models.PurchaseRecord) {
			defer wg.Done()

			if err := s.reconciler.ConfirmPurchase(ctx, rec.Id); err != nil {
				zap.L().Error("Sweep confirmation failed",
					zap.String("purchase_id", rec.Id),
					zap.Error(err))
			}
		}(record)
	}
	wg.Wait()
}
