// Package memory provides an in-memory Storage implementation with the
// same state-machine semantics as the postgres backend. It backs unit
// tests and single-node deployments where durability is not required.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"signal-notifier/internal/model"
	"signal-notifier/internal/storage"
)

// Store keeps all pipeline state in mutex-guarded maps.
type Store struct {
	mu            sync.Mutex
	notifications map[uuid.UUID]*model.Notification
	channels      map[uuid.UUID]*model.Channel
	channelOrder  []uuid.UUID
	templates     map[uuid.UUID]*model.Template
	logs          []model.DeliveryLog
	now           func() time.Time
}

var _ storage.Storage = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		notifications: make(map[uuid.UUID]*model.Notification),
		channels:      make(map[uuid.UUID]*model.Channel),
		templates:     make(map[uuid.UUID]*model.Template),
		now:           time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) Enqueue(_ context.Context, n model.Notification) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	now := s.now()
	n.Status = model.StatusPending
	if n.ScheduledFor.IsZero() {
		n.ScheduledFor = now
	}
	n.CreatedAt = now
	n.UpdatedAt = now

	cp := n
	s.notifications[n.ID] = &cp
	return n.ID, nil
}

func (s *Store) ClaimReady(_ context.Context, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var ready []*model.Notification
	for _, n := range s.notifications {
		if n.Status == model.StatusPending && !n.ScheduledFor.After(now) {
			ready = append(ready, n)
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority < ready[j].Priority
		}
		return ready[i].ScheduledFor.Before(ready[j].ScheduledFor)
	})

	if len(ready) > limit {
		ready = ready[:limit]
	}

	claimed := make([]model.Notification, 0, len(ready))
	for _, n := range ready {
		n.Status = model.StatusProcessing
		n.UpdatedAt = now
		claimed = append(claimed, *n)
	}
	return claimed, nil
}

func (s *Store) MarkSent(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return storage.ErrNotFound
	}
	if n.Status != model.StatusProcessing {
		return storage.ErrInvalidState
	}
	n.Status = model.StatusSent
	n.LastError = ""
	n.UpdatedAt = s.now()
	return nil
}

func (s *Store) MarkFailed(_ context.Context, id uuid.UUID, errMsg string, nextAttempt time.Time) (string, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return "", 0, storage.ErrNotFound
	}
	if n.Status != model.StatusProcessing {
		return "", 0, storage.ErrInvalidState
	}

	n.LastError = errMsg
	n.UpdatedAt = s.now()
	if n.RetryCount < n.MaxRetries {
		n.RetryCount++
		n.Status = model.StatusPending
		n.ScheduledFor = nextAttempt
	} else {
		n.Status = model.StatusFailed
	}
	return n.Status, n.RetryCount, nil
}

func (s *Store) FailPermanently(_ context.Context, id uuid.UUID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return storage.ErrNotFound
	}
	if n.Status != model.StatusProcessing {
		return storage.ErrInvalidState
	}
	n.Status = model.StatusFailed
	n.LastError = errMsg
	n.UpdatedAt = s.now()
	return nil
}

func (s *Store) Cancel(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return storage.ErrNotFound
	}
	if n.Status != model.StatusPending && n.Status != model.StatusProcessing {
		return storage.ErrInvalidState
	}
	n.Status = model.StatusCancelled
	n.UpdatedAt = s.now()
	return nil
}

func (s *Store) RetryFailed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return storage.ErrNotFound
	}
	if n.Status != model.StatusFailed {
		return storage.ErrInvalidState
	}
	now := s.now()
	n.Status = model.StatusPending
	n.RetryCount = 0
	n.LastError = ""
	n.ScheduledFor = now
	n.UpdatedAt = now
	return nil
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return model.Notification{}, storage.ErrNotFound
	}
	return *n, nil
}

func (s *Store) GetByStatus(_ context.Context, status string, limit int) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Notification
	for _, n := range s.notifications {
		if status == "" || n.Status == status {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetFailed(_ context.Context, minRetryCount int) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Notification
	for _, n := range s.notifications {
		if n.Status == model.StatusFailed && n.RetryCount >= minRetryCount {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Store) CountByStatus(_ context.Context, status string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, n := range s.notifications {
		if n.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *Store) PurgeTerminal(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, n := range s.notifications {
		if model.TerminalStatus(n.Status) && n.UpdatedAt.Before(olderThan) {
			delete(s.notifications, id)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) ReleaseStale(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	requeued := 0
	for _, n := range s.notifications {
		if n.Status == model.StatusProcessing && n.UpdatedAt.Before(olderThan) {
			n.Status = model.StatusPending
			n.UpdatedAt = now
			requeued++
		}
	}
	return requeued, nil
}

func (s *Store) CreateChannel(_ context.Context, ch model.Channel) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch.ID == uuid.Nil {
		ch.ID = uuid.New()
	}
	now := s.now()
	ch.CreatedAt = now
	ch.UpdatedAt = now

	cp := ch
	s.channels[ch.ID] = &cp
	s.channelOrder = append(s.channelOrder, ch.ID)
	return ch.ID, nil
}

func (s *Store) UpdateChannel(_ context.Context, ch model.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.channels[ch.ID]
	if !ok {
		return storage.ErrNotFound
	}
	ch.CreatedAt = existing.CreatedAt
	ch.UpdatedAt = s.now()
	*existing = ch
	return nil
}

func (s *Store) GetChannel(_ context.Context, id uuid.UUID) (model.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[id]
	if !ok {
		return model.Channel{}, storage.ErrNotFound
	}
	return *ch, nil
}

func (s *Store) GetChannels(_ context.Context) ([]model.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Channel, 0, len(s.channelOrder))
	for _, id := range s.channelOrder {
		if ch, ok := s.channels[id]; ok {
			out = append(out, *ch)
		}
	}
	return out, nil
}

func (s *Store) ResolveChannel(_ context.Context, channelType string) (model.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.channelOrder {
		ch, ok := s.channels[id]
		if ok && ch.Type == channelType && ch.IsEnabled && ch.IsHealthy {
			return *ch, nil
		}
	}
	return model.Channel{}, storage.ErrNotFound
}

func (s *Store) RecordSuccess(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[id]
	if !ok {
		return storage.ErrNotFound
	}
	ch.SuccessCount++
	ch.ConsecutiveFailures = 0
	ch.IsHealthy = true
	ch.LastError = ""
	ch.UpdatedAt = s.now()
	return nil
}

func (s *Store) RecordFailure(_ context.Context, id uuid.UUID, errMsg string, threshold int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[id]
	if !ok {
		return storage.ErrNotFound
	}
	ch.ErrorCount++
	ch.ConsecutiveFailures++
	ch.LastError = errMsg
	if threshold > 0 && ch.ConsecutiveFailures >= threshold {
		ch.IsHealthy = false
	}
	ch.UpdatedAt = s.now()
	return nil
}

func (s *Store) SetHealth(_ context.Context, id uuid.UUID, healthy bool, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[id]
	if !ok {
		return storage.ErrNotFound
	}
	now := s.now()
	ch.IsHealthy = healthy
	ch.LastHealthCheck = now
	if healthy {
		ch.ConsecutiveFailures = 0
		ch.LastError = ""
	} else if errMsg != "" {
		ch.LastError = errMsg
	}
	ch.UpdatedAt = now
	return nil
}

func (s *Store) CreateTemplate(_ context.Context, t model.Template) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := s.now()
	t.CreatedAt = now
	t.UpdatedAt = now

	cp := t
	s.templates[t.ID] = &cp
	return t.ID, nil
}

func (s *Store) GetTemplateByType(_ context.Context, templateType string) (model.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *model.Template
	for _, t := range s.templates {
		if t.Type == templateType && t.IsActive {
			if best == nil || t.CreatedAt.Before(best.CreatedAt) {
				best = t
			}
		}
	}
	if best == nil {
		return model.Template{}, storage.ErrNotFound
	}
	return *best, nil
}

func (s *Store) GetTemplates(_ context.Context) ([]model.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) AppendLog(_ context.Context, entry model.DeliveryLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.logs = append(s.logs, entry)
	return nil
}

func (s *Store) GetLogs(_ context.Context, limit int) ([]model.DeliveryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.DeliveryLog, len(s.logs))
	copy(out, s.logs)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Store) GetStats(_ context.Context, from, to time.Time) (model.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := model.Stats{PerChannel: make(map[string]model.ChannelStats)}
	for _, l := range s.logs {
		if !from.IsZero() && l.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && l.CreatedAt.After(to) {
			continue
		}
		stats.Total++
		cs := stats.PerChannel[l.Channel]
		// sent_after_cancel attempts did deliver, count them as sent.
		if l.Status == model.LogStatusFailed {
			stats.Failed++
			cs.Failed++
		} else {
			stats.Sent++
			cs.Sent++
		}
		stats.PerChannel[l.Channel] = cs
	}
	for _, n := range s.notifications {
		if n.Status == model.StatusPending {
			stats.Pending++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Sent) / float64(stats.Total)
	}
	return stats, nil
}
