// Package runtime supervises the poller and sender goroutines, grounded
// on original_source/src/app.py's on_startup/on_shutdown pair — its
// asyncio.create_task/cancel-and-await dance expressed with a
// context.Context and sync.WaitGroup instead.
package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/carlosSepher/ninja-payments-reconciler/internal/domain"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/logging"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/repository"
)

// Loop is anything Supervisor can run as a background task — satisfied
// by *poller.Loop and *sender.Loop.
type Loop interface {
	Run(ctx context.Context)
}

// Supervisor starts every registered loop as its own goroutine and
// waits for all of them to return on shutdown, bounded by
// ShutdownTimeout.
type Supervisor struct {
	payments        *repository.PaymentsRepo
	log             *logging.Logger
	instanceID      string
	appName         string
	shutdownTimeout time.Duration

	wg    sync.WaitGroup
	loops []namedLoop
}

type namedLoop struct {
	name string
	loop Loop
}

func New(payments *repository.PaymentsRepo, log *logging.Logger, instanceID, appName string, shutdownTimeout time.Duration) *Supervisor {
	return &Supervisor{
		payments:        payments,
		log:             log,
		instanceID:      instanceID,
		appName:         appName,
		shutdownTimeout: shutdownTimeout,
	}
}

// Register adds a loop to be started by Run. Call before Run.
func (s *Supervisor) Register(name string, loop Loop) {
	s.loops = append(s.loops, namedLoop{name: name, loop: loop})
}

// Run logs STARTUP, starts every registered loop, blocks until ctx is
// cancelled, then logs SHUTDOWN after every loop has returned or
// ShutdownTimeout elapses.
func (s *Supervisor) Run(ctx context.Context) {
	s.log.Infof("service startup: %s", s.appName)
	if err := s.logRuntimeEvent(context.Background(), domain.RuntimeEventStartup); err != nil {
		s.log.Errorf("failed to record startup event: %v", err)
	}

	for _, nl := range s.loops {
		nl := nl
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.log.Infof("background task started: %s", nl.name)
			nl.loop.Run(ctx)
			s.log.Infof("background task stopped: %s", nl.name)
		}()
	}

	<-ctx.Done()
	s.log.Infof("service shutdown: %s", s.appName)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.shutdownTimeout):
		s.log.Warnf("shutdown timeout exceeded, proceeding with remaining tasks in flight")
	}

	if err := s.logRuntimeEvent(context.Background(), domain.RuntimeEventShutdown); err != nil {
		s.log.Errorf("failed to record shutdown event: %v", err)
	}
}

func (s *Supervisor) logRuntimeEvent(ctx context.Context, eventType string) error {
	return s.payments.LogServiceRuntimeEvent(ctx, nil, s.instanceID, eventType, map[string]string{"app": s.appName})
}
