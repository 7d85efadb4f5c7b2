// Package ingest consumes registry alert webhooks, correlates them back to
// provisioned tokens, enriches them with geo context, and records the
// resulting activations.
package ingest

import (
	"context"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"usbdrop/pkg/bus"
	"usbdrop/pkg/config"
	"usbdrop/pkg/geoip"
	"usbdrop/pkg/slack"
)

const processTimeout = 30 * time.Second

// Pipeline decouples webhook acknowledgement from alert processing with a
// bounded in-memory queue drained by a fixed set of workers.
type Pipeline struct {
	store    store
	geo      *geoip.Client
	notifier *slack.Notifier
	bus      *bus.Bus
	logger   *log.Logger

	queue   chan map[string]any
	workers int
	wg      sync.WaitGroup
}

// New builds a pipeline over the shared database handle. Queue size and
// worker count come from configuration with sane defaults already applied.
func New(orm *gorm.DB, geo *geoip.Client, notifier *slack.Notifier, eventBus *bus.Bus, cfg config.IngestConfig, logger *log.Logger) *Pipeline {
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	return &Pipeline{
		store:    &gormStore{orm: orm},
		geo:      geo,
		notifier: notifier,
		bus:      eventBus,
		logger:   logger,
		queue:    make(chan map[string]any, size),
		workers:  workers,
	}
}

// Enqueue hands a raw webhook payload to the workers without blocking the
// caller. When the queue is full the payload is dropped and counted; the
// webhook endpoint still acknowledges.
func (p *Pipeline) Enqueue(payload map[string]any) bool {
	alertsReceived.Inc()
	select {
	case p.queue <- payload:
		return true
	default:
		alertsDropped.Inc()
		p.logger.Printf("WARN ingest: queue full, dropping alert")
		return false
	}
}

// Run starts the worker pool and blocks until ctx is cancelled and all
// workers have drained their in-flight alert.
func (p *Pipeline) Run(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case payload := <-p.queue:
					p.process(ctx, payload)
				}
			}
		}()
	}
	p.wg.Wait()
}

func (p *Pipeline) process(ctx context.Context, payload map[string]any) {
	ctx, cancel := context.WithTimeout(ctx, processTimeout)
	defer cancel()

	candidate := extractTokenID(payload)
	if candidate == "" {
		alertsUnmatched.Inc()
		p.logger.Printf("WARN ingest: alert carries no token identifier")
		return
	}

	token, found, err := p.store.resolveToken(ctx, candidate)
	if err != nil {
		p.logger.Printf("ERROR ingest: resolve token %q: %v", candidate, err)
		return
	}
	if !found {
		alertsUnmatched.Inc()
		p.logger.Printf("WARN ingest: no token matches %q", candidate)
		return
	}

	act := activation{
		SourceIP:    extractSourceIP(payload),
		UserAgent:   extractUserAgent(payload),
		Payload:     payload,
		TriggeredAt: time.Now().UTC(),
	}
	if act.SourceIP != "" {
		loc, err := p.geo.Lookup(ctx, act.SourceIP)
		if err != nil {
			p.logger.Printf("WARN ingest: geo lookup %s: %v", act.SourceIP, err)
		} else {
			act.Location = loc
		}
	}

	drive, err := p.store.recordActivation(ctx, token, act)
	if err != nil {
		p.logger.Printf("ERROR ingest: record activation for token %s: %v", token.ID, err)
		return
	}
	activationsRecorded.Inc()
	p.logger.Printf("INFO ingest: trigger recorded drive=%s token=%s source_ip=%s", drive.Code, token.CanaryTokenID, act.SourceIP)

	if err := p.bus.Publish(ctx, bus.SubjectTriggerRecorded, map[string]any{
		"drive_code":   drive.Code,
		"token_id":     token.ID,
		"token_type":   token.TokenType,
		"source_ip":    act.SourceIP,
		"triggered_at": act.TriggeredAt,
	}); err != nil {
		p.logger.Printf("WARN ingest: publish %s: %v", bus.SubjectTriggerRecorded, err)
	}
	p.notify(ctx, token, drive, act)
}
