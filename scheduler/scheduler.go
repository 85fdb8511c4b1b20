package scheduler

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Task is one step of the reconciliation tick. Tasks run strictly in the
// order they were registered, so detection always updates the fleet before
// scaling decisions look at it.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

type SchedulerApi interface {
	Start() error
	Stop()
}

type scheduler struct {
	tasks    []Task
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	started  bool
}

func NewScheduler(interval time.Duration, tasks []Task) (*scheduler, error) {
	s := &scheduler{interval: interval}

	seen := map[string]bool{}
	for _, task := range tasks {
		if seen[task.Name()] {
			return nil, fmt.Errorf("Task [%s] was already added", task.Name())
		}
		seen[task.Name()] = true
		s.tasks = append(s.tasks, task)
	}
	return s, nil
}

func (s *scheduler) Start() error {
	if s.started {
		return fmt.Errorf("Scheduler is already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true

	go s.process(ctx)
	log.Infof("Scheduler started with a %v tick", s.interval)
	return nil
}

func (s *scheduler) process(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Tick runs all tasks once, in registration order. A failing task is
// logged and does not stop the remaining tasks; the next tick retries.
func (s *scheduler) Tick(ctx context.Context) {
	for _, task := range s.tasks {
		if err := task.Run(ctx); err != nil {
			log.Errorf("Error running task %s. Got: %v", task.Name(), err)
		}
	}
}

func (s *scheduler) Stop() {
	if !s.started {
		return
	}
	s.cancel()
	<-s.done
	s.started = false
	log.Info("Scheduler stopped")
}
