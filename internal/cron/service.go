// Package cron runs the bot's periodic maintenance jobs on robfig/cron.
package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobFunc does one run of a job and returns a short result for the log.
type JobFunc func(ctx context.Context) (string, error)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// JobState is the last-run record of a job.
type JobState struct {
	Name       string
	Schedule   string
	Runs       int
	LastRunAt  time.Time
	LastStatus string
	LastError  string
	NextRunAt  time.Time
}

type job struct {
	name     string
	schedule string
	fn       JobFunc
	entry    rcron.EntryID
	state    JobState
}

type Service struct {
	mu      sync.Mutex
	jobs    map[string]*job
	cron    *rcron.Cron
	log     *zap.Logger
	timeout time.Duration
	running bool
	runCtx  context.Context
	cancel  context.CancelFunc
	stopCh  chan struct{}
}

// NewService creates a stopped scheduler. timeout bounds a single run.
func NewService(log *zap.Logger, timeout time.Duration) *Service {
	log = log.Named("cron")
	logger := cronLogger{log.Sugar()}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Service{
		jobs: make(map[string]*job),
		cron: rcron.New(
			rcron.WithLogger(logger),
			rcron.WithChain(rcron.SkipIfStillRunning(logger)),
		),
		log:     log,
		timeout: timeout,
		runCtx:  context.Background(),
	}
}

// AddJob registers fn under a unique name. Schedules use the standard
// five-field syntax or descriptors such as "@every 5m" and "@daily".
func (s *Service) AddJob(name, schedule string, fn JobFunc) error {
	if _, err := rcron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("job %s: invalid schedule %q: %w", name, schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("job %s already registered", name)
	}

	j := &job{
		name:     name,
		schedule: schedule,
		fn:       fn,
		state:    JobState{Name: name, Schedule: schedule},
	}
	id, err := s.cron.AddFunc(schedule, func() { s.executeJob(j) })
	if err != nil {
		return fmt.Errorf("register job %s: %w", name, err)
	}
	j.entry = id
	s.jobs[name] = j
	return nil
}

// RunNow executes a job synchronously outside its schedule.
func (s *Service) RunNow(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s not found", name)
	}
	s.executeJob(j)

	s.mu.Lock()
	defer s.mu.Unlock()
	if j.state.LastStatus == StatusError {
		return fmt.Errorf("job %s: %s", name, j.state.LastError)
	}
	return nil
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	stopCh := make(chan struct{})
	s.runCtx = runCtx
	s.cancel = cancel
	s.stopCh = stopCh
	s.running = true
	n := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info("started", zap.Int("jobs", n))

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stopCh:
		}
	}()
	return nil
}

// Stop halts scheduling and waits briefly for running jobs.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	stopCh := s.stopCh
	s.cancel = nil
	s.stopCh = nil
	s.runCtx = context.Background()
	s.mu.Unlock()

	close(stopCh)
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn("stop timeout waiting for running jobs")
	}
	cancel()
	s.log.Info("stopped")
}

// Jobs returns the state of every job sorted by name.
func (s *Service) Jobs() []JobState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobState, 0, len(s.jobs))
	for _, j := range s.jobs {
		st := j.state
		if e := s.cron.Entry(j.entry); e.Valid() {
			st.NextRunAt = e.Next
		}
		out = append(out, st)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

func (s *Service) executeJob(j *job) {
	s.mu.Lock()
	parent := s.runCtx
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	start := time.Now()
	result, err := safeRun(ctx, j.fn)

	s.mu.Lock()
	j.state.Runs++
	j.state.LastRunAt = start
	if err != nil {
		j.state.LastStatus = StatusError
		j.state.LastError = err.Error()
	} else {
		j.state.LastStatus = StatusOK
		j.state.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("job failed", zap.String("job", j.name), zap.Error(err))
		return
	}
	s.log.Debug("job done",
		zap.String("job", j.name),
		zap.String("result", truncate(result, 100)),
		zap.Duration("took", time.Since(start)))
}

func safeRun(ctx context.Context, fn JobFunc) (result string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}

// cronLogger routes robfig/cron's own logging into zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
