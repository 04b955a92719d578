package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/open-harness/loom/internal/events"
	"github.com/open-harness/loom/internal/scaffold"
)

// DefaultCooldown is the minimum interval between two triggers of the same entry.
const DefaultCooldown = 60 * time.Second

// Config holds dependencies for the Scheduler.
type Config struct {
	Scaffold *scaffold.Scaffold
	Bus      *events.Bus
	Store    *ScheduleStore // nil-safe: entries are not persisted without a store
}

// runtimeEntry is the in-memory representation of a ScheduleEntry, holding
// its parsed cron schedule so it is not re-parsed on every tick.
type runtimeEntry struct {
	entry *ScheduleEntry
	cron  *CronExpr
}

// Scheduler drives cron-based, interval-based, and event-triggered session
// creation: every firing starts a new workflow session via Scaffold instead
// of submitting a task to a worker pool.
type Scheduler struct {
	scaffold *scaffold.Scaffold
	bus      *events.Bus
	store    *ScheduleStore

	mu      sync.Mutex
	entries map[string]*runtimeEntry

	done        chan struct{}
	unsubscribe func()
}

// New creates a Scheduler.
func New(cfg Config) *Scheduler {
	return &Scheduler{
		scaffold: cfg.Scaffold,
		bus:      cfg.Bus,
		store:    cfg.Store,
		entries:  make(map[string]*runtimeEntry),
		done:     make(chan struct{}),
	}
}

// Start loads persisted entries and begins the cron/interval tickers and
// the event subscription. Entries can still be added dynamically afterward.
func (s *Scheduler) Start() {
	s.loadPersistedEntries()
	slog.Info("scheduler started", "entries", len(s.entries))

	ch, unsubscribe := s.bus.Subscribe("", events.MatchAll)
	s.unsubscribe = unsubscribe
	go s.eventLoop(ch)
	go s.cronLoop()
	go s.intervalLoop()
}

// Stop halts the scheduler.
func (s *Scheduler) Stop() {
	close(s.done)
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	slog.Info("scheduler stopped")
}

// AddEntry registers a schedule entry as enabled, persisting it if a store
// is configured.
func (s *Scheduler) AddEntry(se *ScheduleEntry) error {
	if se.CronSpec == "" && se.IntervalSec == 0 && se.OnEvent == nil {
		return fmt.Errorf("schedule entry must have cron, interval, or on_event trigger")
	}
	if se.IntervalSec > 0 && se.IntervalSec < 5 {
		return fmt.Errorf("interval must be at least 5 seconds")
	}
	if se.WorkflowName == "" {
		return fmt.Errorf("schedule entry must name a workflow")
	}
	if se.ID == "" {
		se.ID = GenerateScheduleID()
	}
	if se.CooldownSec == 0 {
		se.CooldownSec = int(DefaultCooldown / time.Second)
	}
	se.Enabled = true

	re := &runtimeEntry{entry: se}
	if se.CronSpec != "" {
		expr, err := ParseCron(se.CronSpec)
		if err != nil {
			return fmt.Errorf("parse cron: %w", err)
		}
		re.cron = expr
	}

	if s.store != nil {
		if err := s.store.Create(se); err != nil {
			return fmt.Errorf("persist schedule: %w", err)
		}
	}

	s.mu.Lock()
	s.entries[se.ID] = re
	s.mu.Unlock()

	slog.Info("scheduler: added entry", "id", se.ID, "title", se.Title, "workflow", se.WorkflowName)
	return nil
}

// RemoveEntry removes a schedule entry by ID.
func (s *Scheduler) RemoveEntry(id string) error {
	s.mu.Lock()
	_, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("schedule entry not found: %s", id)
	}
	delete(s.entries, id)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Delete(id); err != nil {
			slog.Warn("scheduler: failed to delete persisted entry", "id", id, "error", err)
		}
	}

	slog.Info("scheduler: removed entry", "id", id)
	return nil
}

// GetEntry returns a schedule entry by ID.
func (s *Scheduler) GetEntry(id string) (*ScheduleEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	re, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return re.entry, true
}

// ListEntries returns all schedule entries.
func (s *Scheduler) ListEntries() []*ScheduleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*ScheduleEntry, 0, len(s.entries))
	for _, re := range s.entries {
		result = append(result, re.entry)
	}
	return result
}

// loadPersistedEntries loads entries from the store, if configured.
func (s *Scheduler) loadPersistedEntries() {
	if s.store == nil {
		return
	}

	entries, err := s.store.List()
	if err != nil {
		slog.Warn("scheduler: failed to load persisted entries", "error", err)
		return
	}

	for _, se := range entries {
		if !se.Enabled {
			continue
		}

		re := &runtimeEntry{entry: se}
		if se.CronSpec != "" {
			expr, err := ParseCron(se.CronSpec)
			if err != nil {
				slog.Warn("scheduler: invalid cron in persisted entry", "id", se.ID, "error", err)
				continue
			}
			re.cron = expr
		}

		s.entries[se.ID] = re
		slog.Info("scheduler: loaded persisted entry", "id", se.ID, "title", se.Title)
	}
}

func (s *Scheduler) cronLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.checkCron(now)
		}
	}
}

func (s *Scheduler) intervalLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.checkIntervals(now)
		}
	}
}

func (s *Scheduler) eventLoop(ch <-chan events.Event) {
	for {
		select {
		case <-s.done:
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			s.handleEvent(e)
		}
	}
}

func (s *Scheduler) checkCron(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, re := range s.entries {
		if re.cron == nil || !re.entry.Enabled {
			continue
		}
		if !re.cron.Matches(now) {
			continue
		}
		if now.Sub(lastRun(re.entry)) < cooldown(re.entry) {
			continue
		}
		s.triggerEntry(re, "cron")
	}
}

func (s *Scheduler) checkIntervals(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, re := range s.entries {
		if re.entry.IntervalSec <= 0 || !re.entry.Enabled {
			continue
		}
		interval := time.Duration(re.entry.IntervalSec) * time.Second
		if now.Sub(lastRun(re.entry)) < interval {
			continue
		}
		s.triggerEntry(re, "interval")
	}
}

func (s *Scheduler) handleEvent(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, re := range s.entries {
		if re.entry.OnEvent == nil || !re.entry.Enabled {
			continue
		}
		if !MatchEvent(e, re.entry.OnEvent) {
			continue
		}
		if now.Sub(lastRun(re.entry)) < cooldown(re.entry) {
			continue
		}
		s.triggerEntry(re, "event:"+string(e.Name))
	}
}

// triggerEntry starts a new workflow session for re. Caller must hold s.mu.
func (s *Scheduler) triggerEntry(re *runtimeEntry, trigger string) {
	now := time.Now()
	re.entry.LastRunAt = &now
	re.entry.RunCount++

	sessionID, err := s.scaffold.CreateSession(context.Background(), re.entry.WorkflowName, re.entry.Input)

	payload := events.ScheduleTriggeredPayload{
		EntryID:      re.entry.ID,
		EntryTitle:   re.entry.Title,
		WorkflowName: re.entry.WorkflowName,
		SessionID:    sessionID,
	}
	if err != nil {
		slog.Error("scheduler: create session", "id", re.entry.ID, "error", err)
		payload.Error = err.Error()
	}

	if re.entry.MaxRuns > 0 && re.entry.RunCount >= re.entry.MaxRuns {
		re.entry.Enabled = false
		slog.Info("scheduler: entry reached max runs, disabled", "id", re.entry.ID, "runs", re.entry.RunCount)
	}

	if s.store != nil {
		if err := s.store.Update(re.entry); err != nil {
			slog.Warn("scheduler: failed to update persisted entry", "id", re.entry.ID, "error", err)
		}
	}

	s.bus.Publish(events.Event{
		SessionID: sessionID,
		Name:      events.ScheduleTriggered,
		Payload:   payload,
		Timestamp: now,
	})

	slog.Info("scheduler: triggered", "id", re.entry.ID, "trigger", trigger, "session_id", sessionID)
}

func lastRun(se *ScheduleEntry) time.Time {
	if se.LastRunAt == nil {
		return time.Time{}
	}
	return *se.LastRunAt
}

func cooldown(se *ScheduleEntry) time.Duration {
	if se.CooldownSec <= 0 {
		return DefaultCooldown
	}
	return time.Duration(se.CooldownSec) * time.Second
}
