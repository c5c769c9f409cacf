package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	cronlib "github.com/robfig/cron/v3"

	"github.com/neboloop/skiff/internal/logging"
)

// FileName is the workspace file read on every tick
const FileName = "HEARTBEAT.md"

// DefaultSchedule runs the heartbeat every half hour
const DefaultSchedule = "@every 30m"

// Handler receives the heartbeat prompt and returns the agent's reply
type Handler func(ctx context.Context, message string) string

// Service runs HEARTBEAT.md through the agent on a cron schedule
type Service struct {
	workspace string
	schedule  string
	handler   Handler

	mu        sync.Mutex
	scheduler *cronlib.Cron
	cancel    context.CancelFunc
	running   sync.Mutex // one tick at a time
}

// New creates a heartbeat service. An empty schedule uses DefaultSchedule.
func New(workspace, schedule string, handler Handler) *Service {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Service{workspace: workspace, schedule: schedule, handler: handler}
}

// Start schedules ticks until Stop is called or ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	if s.handler == nil {
		return errors.New("heartbeat: handler required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler != nil {
		return errors.New("heartbeat: already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	scheduler := cronlib.New()
	if _, err := scheduler.AddFunc(s.schedule, func() {
		if _, err := s.Tick(ctx); err != nil {
			logging.Errorf("[heartbeat] Tick failed: %v", err)
		}
	}); err != nil {
		cancel()
		return fmt.Errorf("invalid heartbeat schedule %q: %w", s.schedule, err)
	}

	scheduler.Start()
	s.scheduler = scheduler
	s.cancel = cancel
	logging.Infof("[heartbeat] Scheduled %s from %s", s.schedule, filepath.Join(s.workspace, FileName))
	return nil
}

// Stop halts the schedule and waits for a running tick to finish
func (s *Service) Stop() {
	s.mu.Lock()
	scheduler, cancel := s.scheduler, s.cancel
	s.scheduler, s.cancel = nil, nil
	s.mu.Unlock()

	if scheduler == nil {
		return
	}
	cancel()
	<-scheduler.Stop().Done()
}

// Tick reads HEARTBEAT.md and, when it has content, runs it.
// It returns the reply, or "" when there was nothing to run.
func (s *Service) Tick(ctx context.Context) (string, error) {
	if !s.running.TryLock() {
		logging.Debugf("[heartbeat] Previous tick still running, skipping")
		return "", nil
	}
	defer s.running.Unlock()

	data, err := os.ReadFile(filepath.Join(s.workspace, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	content := strings.TrimRight(string(data), " \t\r\n")
	if content == "" {
		return "", nil
	}

	logging.Infof("[heartbeat] Running %s (%d chars)", FileName, len(content))
	reply := s.handler(ctx, "[heartbeat] "+content)
	logging.Debugf("[heartbeat] Reply: %s", reply)
	return reply, nil
}
