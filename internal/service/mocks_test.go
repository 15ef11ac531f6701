package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	. "github.com/onsi/gomega"

	"github.com/leecorbin/support-alert-system/common/id"
	"github.com/leecorbin/support-alert-system/core/config"
	"github.com/leecorbin/support-alert-system/internal/model"
	"github.com/leecorbin/support-alert-system/internal/service"
	"github.com/leecorbin/support-alert-system/internal/store"
)

func detectionConfig(botIDs ...string) config.DetectionConfig {
	return config.DetectionConfig{BotIDs: botIDs, HistoryLookback: 10}
}

// appendLog stores an event the way ingest would, so detector history scans
// and replays can see it.
func appendLog(ctx context.Context, stores *memStores, conv, eventType, value string, at time.Time) *model.EventLog {
	entry := &model.EventLog{
		ID:             id.New(),
		ConversationID: conv,
		EventType:      eventType,
		DedupeKey:      fmt.Sprintf("test:%d", id.New()),
		ObservedAt:     at,
		Payload:        json.RawMessage(`{}`),
	}
	if value != "" {
		entry.PropertyValue = &value
	}
	_, created, err := stores.EventLogs().CreateOrGet(ctx, entry)
	Expect(err).NotTo(HaveOccurred())
	Expect(created).To(BeTrue())
	return entry
}

// memStores is an in-memory implementation of the store contracts, including
// the merge semantics of the conversation store, so service tests exercise
// real state evolution across events.
type memStores struct {
	mu            sync.Mutex
	conversations map[string]*model.Conversation
	events        []model.EventLog
	metrics       model.MetricsSnapshot
	alerts        []model.Alert

	mergeErr error
	getErr   error
}

func newMemStores() *memStores {
	return &memStores{
		conversations: make(map[string]*model.Conversation),
	}
}

func (m *memStores) EventLogs() store.EventLogStore         { return (*memEventLogStore)(m) }
func (m *memStores) Conversations() store.ConversationStore { return (*memConversationStore)(m) }
func (m *memStores) Metrics() store.MetricsStore            { return (*memMetricsStore)(m) }
func (m *memStores) Alerts() store.AlertStore               { return (*memAlertStore)(m) }

// memTxRunner runs the function against the same in-memory stores. There is
// no rollback; tests that need failure semantics inject errors before any
// write happens.
type memTxRunner struct {
	stores *memStores
}

func (r *memTxRunner) WithTx(_ context.Context, fn func(stores service.StoreProvider) error) error {
	return fn(r.stores)
}

type memEventLogStore memStores

func (s *memEventLogStore) CreateOrGet(_ context.Context, log *model.EventLog) (*model.EventLog, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.events {
		if s.events[i].DedupeKey == log.DedupeKey {
			existing := s.events[i]
			return &existing, false, nil
		}
	}

	stored := *log
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.events = append(s.events, stored)
	result := stored
	return &result, true, nil
}

func (s *memEventLogStore) GetByID(_ context.Context, id int64) (*model.EventLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.events {
		if s.events[i].ID == id {
			event := s.events[i]
			return &event, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *memEventLogStore) ListByConversation(_ context.Context, conversationID string) ([]model.EventLog, error) {
	return s.list(conversationID, false, 0), nil
}

func (s *memEventLogStore) ListRecentByConversation(_ context.Context, conversationID string, limit int32) ([]model.EventLog, error) {
	return s.list(conversationID, true, int(limit)), nil
}

func (s *memEventLogStore) list(conversationID string, newestFirst bool, limit int) []model.EventLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []model.EventLog
	for i := range s.events {
		if s.events[i].ConversationID == conversationID {
			result = append(result, s.events[i])
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if newestFirst {
			return result[i].ObservedAt.After(result[j].ObservedAt)
		}
		return result[i].ObservedAt.Before(result[j].ObservedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

func (s *memEventLogStore) ListUnprocessed(_ context.Context, limit int32) ([]model.EventLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []model.EventLog
	for i := range s.events {
		if s.events[i].ProcessedAt == nil {
			result = append(result, s.events[i])
			if int32(len(result)) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (s *memEventLogStore) MarkProcessed(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for i := range s.events {
		if s.events[i].ID == id {
			s.events[i].ProcessedAt = &now
			s.events[i].ProcessingError = nil
		}
	}
	return nil
}

func (s *memEventLogStore) MarkFailed(_ context.Context, id int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for i := range s.events {
		if s.events[i].ID == id {
			s.events[i].ProcessedAt = &now
			s.events[i].ProcessingError = &errMsg
		}
	}
	return nil
}

type memConversationStore memStores

func (s *memConversationStore) GetByID(_ context.Context, conversationID string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.getErr != nil {
		return nil, s.getErr
	}

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *conv
	return &copied, nil
}

func (s *memConversationStore) Merge(_ context.Context, patch model.ConversationPatch) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mergeErr != nil {
		return nil, s.mergeErr
	}

	conv, ok := s.conversations[patch.ConversationID]
	if !ok {
		conv = &model.Conversation{
			ConversationID: patch.ConversationID,
			Status:         model.ConversationStatusOpen,
		}
		s.conversations[patch.ConversationID] = conv
	}

	if patch.CurrentAssignee != nil {
		conv.CurrentAssignee = patch.CurrentAssignee
	}
	if patch.HasHadBotAssignment != nil {
		conv.HasHadBotAssignment = conv.HasHadBotAssignment || *patch.HasHadBotAssignment
	}
	if patch.Escalated != nil {
		conv.Escalated = conv.Escalated || *patch.Escalated
	}
	if patch.EscalationCounted != nil {
		conv.EscalationCounted = *patch.EscalationCounted
	}
	if patch.EscalatedFrom != nil {
		conv.EscalatedFrom = patch.EscalatedFrom
	}
	if patch.EscalatedTo != nil {
		conv.EscalatedTo = patch.EscalatedTo
	}
	if patch.EscalatedAt != nil {
		conv.EscalatedAt = patch.EscalatedAt
	}
	if patch.ClosedAt != nil {
		conv.ClosedAt = patch.ClosedAt
	}
	if patch.Status != nil {
		conv.Status = *patch.Status
	}
	conv.Version++
	conv.LastUpdated = time.Now()

	copied := *conv
	return &copied, nil
}

func (s *memConversationStore) CountCountedEscalations(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, conv := range s.conversations {
		if conv.Escalated && conv.EscalationCounted && conv.Status == model.ConversationStatusOpen {
			count++
		}
	}
	return count, nil
}

func (s *memConversationStore) ClearCountedFlags(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, conv := range s.conversations {
		conv.EscalationCounted = false
	}
	return nil
}

func (s *memConversationStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = make(map[string]*model.Conversation)
	return nil
}

type memMetricsStore memStores

func (s *memMetricsStore) Get(_ context.Context) (*model.MetricsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := s.metrics
	return &copied, nil
}

func (s *memMetricsStore) IncrementEscalated(_ context.Context, source string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	if s.metrics.EscalatedSessions != nil {
		count = *s.metrics.EscalatedSessions
	}
	count++
	s.metrics.EscalatedSessions = &count
	s.metrics.Source = source
	return count, nil
}

func (s *memMetricsStore) DecrementEscalated(_ context.Context, source string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	if s.metrics.EscalatedSessions != nil {
		count = *s.metrics.EscalatedSessions
	}
	count--
	if count < 0 {
		count = 0
	}
	s.metrics.EscalatedSessions = &count
	s.metrics.Source = source
	return count, nil
}

func (s *memMetricsStore) SetEscalated(_ context.Context, count int, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.EscalatedSessions = &count
	s.metrics.Source = source
	return nil
}

func (s *memMetricsStore) SetActive(_ context.Context, count *int, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.ActiveSessions = count
	s.metrics.Source = source
	return nil
}

func (s *memMetricsStore) SetTickets(_ context.Context, tickets model.TicketCounts, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.Tickets = tickets
	s.metrics.Source = source
	return nil
}

func (s *memMetricsStore) ResetEscalated(_ context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	zero := 0
	s.metrics.EscalatedSessions = &zero
	s.metrics.Source = source
	return nil
}

type memAlertStore memStores

func (s *memAlertStore) Append(_ context.Context, alert *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts = append(s.alerts, *alert)
	return nil
}

func (s *memAlertStore) ListRecent(_ context.Context, limit int32) ([]model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]model.Alert, len(s.alerts))
	copy(result, s.alerts)
	if int32(len(result)) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *memStores) escalatedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.metrics.EscalatedSessions == nil {
		return -1
	}
	return *s.metrics.EscalatedSessions
}

func (s *memStores) conversation(id string) *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil
	}
	copied := *conv
	return &copied
}

func (s *memStores) alertClasses() []model.AlertClass {
	s.mu.Lock()
	defer s.mu.Unlock()

	classes := make([]model.AlertClass, 0, len(s.alerts))
	for _, a := range s.alerts {
		classes = append(classes, a.Class)
	}
	return classes
}
