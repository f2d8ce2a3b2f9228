// Package agent drives the action-cycle loop: it decides each tick whether to
// run an action cycle, a reflection cycle, or idle, and serializes all
// model-affecting work.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/voslund/vigil/internal/config"
	"github.com/voslund/vigil/internal/memory"
	"github.com/voslund/vigil/internal/model"
	"github.com/voslund/vigil/internal/models"
	"github.com/voslund/vigil/internal/store"
	"go.uber.org/zap"
)

// Cycle identifies which kind of work a tick performed.
type Cycle string

const (
	CycleNone       Cycle = ""
	CycleAction     Cycle = "action"
	CycleReflection Cycle = "reflection"
)

// ModelCaller is the slice of the model interface the scheduler needs.
type ModelCaller interface {
	Act(ctx context.Context, goal, memoryMD string, now time.Time) (*model.ActionResult, *model.Exchange, error)
	Reflect(ctx context.Context, goal, memoryMD string) (*model.ReflectionResult, *model.Exchange, error)
	Search(ctx context.Context, query string) (string, error)
	ModelID() string
}

// TuneRunner runs one fine-tuning maintenance pass.
type TuneRunner interface {
	Run(ctx context.Context) error
}

// Scheduler owns the agent's serialized think/act/record loop. A single
// goroutine evaluates gates and runs at most one cycle per tick; action and
// reflection never overlap.
type Scheduler struct {
	cfg           config.AgentConfig
	ftInterval    time.Duration
	searchEnabled bool

	mem    *memory.Manager
	caller ModelCaller
	tuner  TuneRunner
	store  *store.Store
	logger *zap.Logger

	state models.ScheduleState

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	fatalCh chan error
}

// Options wires a Scheduler.
type Options struct {
	Agent         config.AgentConfig
	FineTuneEvery time.Duration // zero disables the maintenance cycle
	SearchEnabled bool
	Memory        *memory.Manager
	Model         ModelCaller
	Tuner         TuneRunner
	Store         *store.Store
	Logger        *zap.Logger
}

// New creates a Scheduler, reloading the persisted schedule state so a
// restart resumes gating where the previous process left off.
func New(opts Options) (*Scheduler, error) {
	state, err := opts.Store.LoadScheduleState()
	if err != nil {
		return nil, fmt.Errorf("load schedule state: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:           opts.Agent,
		ftInterval:    opts.FineTuneEvery,
		searchEnabled: opts.SearchEnabled,
		mem:           opts.Memory,
		caller:        opts.Model,
		tuner:         opts.Tuner,
		store:         opts.Store,
		logger:        opts.Logger,
		state:         state,
		ctx:           ctx,
		cancel:        cancel,
		fatalCh:       make(chan error, 1),
	}, nil
}

// Fatal delivers the first unrecoverable error (bad credential, invalid
// section structure). The daemon shuts down on it.
func (s *Scheduler) Fatal() <-chan error {
	return s.fatalCh
}

// State returns the current schedule state.
func (s *Scheduler) State() models.ScheduleState {
	return s.state
}

// Start begins the scheduler loop. The first tick runs immediately, so a
// fresh agent takes its first action at startup.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
	s.logger.Info("scheduler started",
		zap.Duration("action_interval", s.cfg.ActionInterval),
		zap.Duration("reflection_interval", s.cfg.ReflectionInterval),
		zap.Duration("poll_interval", s.cfg.PollInterval))
}

// Stop halts the loop and flushes any pending memory write before returning.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	if err := s.mem.Flush(); err != nil {
		s.logger.Error("memory flush on shutdown failed", zap.Error(err))
	}
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.state, _ = s.Tick(s.ctx, time.Now().UTC(), s.state)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.state, _ = s.Tick(s.ctx, time.Now().UTC(), s.state)
		}
	}
}

// Tick evaluates the interval gates at `now` and runs at most one cycle,
// returning the advanced state. Action takes priority over reflection; when
// both are due, reflection waits for the next eligible tick. A failed cycle
// never advances its gate, so the same cycle is retried at the next tick.
// The fine-tune gate is evaluated independently and its failures never abort
// the loop.
func (s *Scheduler) Tick(ctx context.Context, now time.Time, st models.ScheduleState) (models.ScheduleState, Cycle) {
	ran := CycleNone

	switch {
	case now.Sub(st.LastActionTime) >= s.cfg.ActionInterval:
		if err := s.runActionCycle(ctx, now); err != nil {
			s.recordError("action cycle", err)
		} else {
			st.LastActionTime = now
			s.persistState(st)
			ran = CycleAction
		}
	case now.Sub(st.LastReflectionTime) >= s.cfg.ReflectionInterval:
		if err := s.runReflectionCycle(ctx, now); err != nil {
			s.recordError("reflection cycle", err)
		} else {
			st.LastReflectionTime = now
			s.persistState(st)
			ran = CycleReflection
		}
	}

	if s.tuner != nil && s.ftInterval > 0 && now.Sub(st.LastFineTuneTime) >= s.ftInterval {
		if err := s.tuner.Run(ctx); err != nil {
			s.recordError("fine-tuning", err)
		} else {
			st.LastFineTuneTime = now
			s.persistState(st)
		}
	}

	return st, ran
}

// runActionCycle reads memory, queries the model for the next action, folds
// the outcome back into memory, and records the exchange.
func (s *Scheduler) runActionCycle(ctx context.Context, now time.Time) error {
	if err := s.mem.Bootstrap(s.cfg.Name, s.cfg.Goal, now); err != nil {
		return err
	}

	memoryMD := s.mem.Read().Markdown()
	result, ex, err := s.caller.Act(ctx, s.cfg.Goal, memoryMD, now)
	if err != nil {
		return err
	}

	outcome := result.Summary
	if result.SearchQuery != "" && s.searchEnabled {
		if findings := s.runSearch(ctx, result.SearchQuery); findings != "" {
			outcome += "\n\nSearch findings (" + result.SearchQuery + "):\n" + condense(findings, 600)
		}
	}

	if err := s.mem.Append(memory.SectionRecentActions, outcome); err != nil {
		return err
	}

	s.appendLog(models.LogTypePrompt, ex.Prompt)
	s.appendLog(models.LogTypeResponse, ex.Response)
	s.appendLog(models.LogTypeAction, "Action cycle completed and memory updated")
	s.logger.Info("action cycle completed", zap.Int("outcome_len", len(outcome)))
	return nil
}

// runReflectionCycle asks for a condensed synthesis and folds it into the
// Insights section.
func (s *Scheduler) runReflectionCycle(ctx context.Context, now time.Time) error {
	if err := s.mem.Bootstrap(s.cfg.Name, s.cfg.Goal, now); err != nil {
		return err
	}

	memoryMD := s.mem.Read().Markdown()
	result, ex, err := s.caller.Reflect(ctx, s.cfg.Goal, memoryMD)
	if err != nil {
		return err
	}

	if err := s.mem.Append(memory.SectionInsights, result.Insights); err != nil {
		return err
	}

	s.appendLog(models.LogTypePrompt, ex.Prompt)
	s.appendLog(models.LogTypeResponse, ex.Response)
	s.appendLog(models.LogTypeReflection, "Reflection cycle completed and memory updated")
	s.logger.Info("reflection cycle completed")
	return nil
}

// runSearch executes a model-requested web search. Search failures degrade
// the action outcome but never fail the cycle.
func (s *Scheduler) runSearch(ctx context.Context, query string) string {
	findings, err := s.caller.Search(ctx, query)
	if err != nil {
		if errors.Is(err, model.ErrSearchUnsupported) {
			s.logger.Warn("search requested but provider does not support it", zap.String("query", query))
		} else {
			s.recordError("search", err)
		}
		return ""
	}

	if _, err := s.store.AddFinding(query, findings); err != nil {
		s.logger.Error("store finding failed", zap.Error(err))
	}
	s.appendLog(models.LogTypeInfo, "Search completed: "+query)
	return findings
}

// recordError converts any cycle failure into an error log entry first, so
// the dashboard always has visibility, then escalates the fatal ones.
func (s *Scheduler) recordError(stage string, err error) {
	s.appendLog(models.LogTypeError, stage+" failed: "+err.Error())
	s.logger.Error(stage+" failed", zap.Error(err))

	var sectionErr *memory.InvalidSectionError
	if model.IsFatal(err) || errors.As(err, &sectionErr) {
		select {
		case s.fatalCh <- err:
		default:
		}
	}
}

func (s *Scheduler) appendLog(logType models.LogType, message string) {
	if _, err := s.store.Append(logType, message); err != nil {
		s.logger.Error("log append failed", zap.String("type", string(logType)), zap.Error(err))
	}
}

// persistState saves the schedule state. This runs strictly after the
// cycle's log entries were appended, so a crash between the two replays the
// cycle instead of silently skipping it.
func (s *Scheduler) persistState(st models.ScheduleState) {
	if err := s.store.SaveScheduleState(st); err != nil {
		s.logger.Error("persist schedule state failed", zap.Error(err))
	}
}

func condense(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
