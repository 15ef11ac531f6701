package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/leecorbin/support-alert-system/common/id"
	"github.com/leecorbin/support-alert-system/core/config"
	"github.com/leecorbin/support-alert-system/internal/model"
	"github.com/leecorbin/support-alert-system/internal/service"
)

var _ = Describe("EscalationDetector", func() {
	var (
		ctx        context.Context
		stores     *memStores
		dispatcher service.AlertDispatcher
		detector   service.EscalationDetector
	)

	newDetector := func(botIDs ...string) service.EscalationDetector {
		return service.NewEscalationDetector(stores, &memTxRunner{stores: stores}, dispatcher,
			config.DetectionConfig{BotIDs: botIDs, HistoryLookback: 10}, nil)
	}

	// logEvent appends an event to the durable log the way ingest would,
	// so the detector's history scan can see it.
	logEvent := func(conv, eventType, value string, at time.Time) *model.EventLog {
		entry := &model.EventLog{
			ID:             id.New(),
			ConversationID: conv,
			EventType:      eventType,
			PropertyValue:  &value,
			DedupeKey:      fmt.Sprintf("test:%d", id.New()),
			ObservedAt:     at,
			Payload:        json.RawMessage(`{}`),
		}
		_, created, err := stores.EventLogs().CreateOrGet(ctx, entry)
		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(BeTrue())
		return entry
	}

	BeforeEach(func() {
		ctx = context.Background()
		stores = newMemStores()
		dispatcher = service.NewAlertDispatcher(stores.Alerts(), nil)
		detector = newDetector("BOT-1", "BOT-2")
	})

	Describe("bot to human handover", func() {
		It("counts the escalation exactly once", func() {
			t0 := time.Now()
			bot := logEvent("conv-1", model.EventTypeAssignmentChange, "BOT-1", t0)
			human := logEvent("conv-1", model.EventTypeAssignmentChange, "AGENT-7", t0.Add(time.Minute))

			Expect(detector.ProcessEvent(ctx, bot)).To(Succeed())
			Expect(detector.ProcessEvent(ctx, human)).To(Succeed())

			Expect(stores.escalatedCount()).To(Equal(1))

			conv := stores.conversation("conv-1")
			Expect(conv).NotTo(BeNil())
			Expect(conv.Escalated).To(BeTrue())
			Expect(conv.EscalationCounted).To(BeTrue())
			Expect(conv.EscalatedFrom).To(HaveValue(Equal("BOT-1")))
			Expect(conv.EscalatedTo).To(HaveValue(Equal("AGENT-7")))

			dispatcher.Wait()
			Expect(stores.alertClasses()).To(ContainElement(model.AlertClassEscalation))
		})

		It("is idempotent when the human event is replayed", func() {
			t0 := time.Now()
			bot := logEvent("conv-1", model.EventTypeAssignmentChange, "BOT-1", t0)
			human := logEvent("conv-1", model.EventTypeAssignmentChange, "AGENT-7", t0.Add(time.Minute))

			Expect(detector.ProcessEvent(ctx, bot)).To(Succeed())
			Expect(detector.ProcessEvent(ctx, human)).To(Succeed())
			Expect(detector.ProcessEvent(ctx, human)).To(Succeed())
			Expect(detector.ProcessEvent(ctx, human)).To(Succeed())

			Expect(stores.escalatedCount()).To(Equal(1))
		})

		It("does not double count a human to human reassignment", func() {
			t0 := time.Now()
			bot := logEvent("conv-1", model.EventTypeAssignmentChange, "BOT-1", t0)
			first := logEvent("conv-1", model.EventTypeAssignmentChange, "AGENT-7", t0.Add(time.Minute))
			second := logEvent("conv-1", model.EventTypeAssignmentChange, "AGENT-9", t0.Add(2*time.Minute))

			Expect(detector.ProcessEvent(ctx, bot)).To(Succeed())
			Expect(detector.ProcessEvent(ctx, first)).To(Succeed())
			Expect(detector.ProcessEvent(ctx, second)).To(Succeed())

			Expect(stores.escalatedCount()).To(Equal(1))
			conv := stores.conversation("conv-1")
			Expect(conv.CurrentAssignee).To(HaveValue(Equal("AGENT-9")))
			Expect(conv.EscalatedTo).To(HaveValue(Equal("AGENT-7")))
		})
	})

	Describe("out of order delivery", func() {
		It("detects the escalation when the human event is processed before the bot event", func() {
			t0 := time.Now()
			bot := logEvent("conv-1", model.EventTypeAssignmentChange, "BOT-1", t0)
			human := logEvent("conv-1", model.EventTypeAssignmentChange, "AGENT-7", t0.Add(time.Minute))

			// Both events are durable, but the human one arrives first.
			Expect(detector.ProcessEvent(ctx, human)).To(Succeed())
			Expect(stores.escalatedCount()).To(Equal(1))

			conv := stores.conversation("conv-1")
			Expect(conv.EscalatedFrom).To(HaveValue(Equal("BOT-1")))

			// The late bot event must not change the verdict or the count.
			Expect(detector.ProcessEvent(ctx, bot)).To(Succeed())
			Expect(stores.escalatedCount()).To(Equal(1))
			Expect(stores.conversation("conv-1").Escalated).To(BeTrue())
		})

		It("does not escalate a lone human assignment with no bot in the log", func() {
			human := logEvent("conv-1", model.EventTypeAssignmentChange, "AGENT-7", time.Now())

			Expect(detector.ProcessEvent(ctx, human)).To(Succeed())

			Expect(stores.escalatedCount()).To(Equal(-1)) // never touched, still null
			conv := stores.conversation("conv-1")
			Expect(conv.Escalated).To(BeFalse())
			Expect(conv.HasHadBotAssignment).To(BeFalse())
		})

		It("never retroactively escalates when the bot event lands after the human took over", func() {
			t0 := time.Now()
			human := logEvent("conv-1", model.EventTypeAssignmentChange, "AGENT-7", t0)
			late := logEvent("conv-1", model.EventTypeAssignmentChange, "BOT-1", t0.Add(time.Minute))

			Expect(detector.ProcessEvent(ctx, human)).To(Succeed())
			Expect(detector.ProcessEvent(ctx, late)).To(Succeed())

			// conv-1 never escalated: human came first, bot later.
			Expect(stores.conversation("conv-1").Escalated).To(BeFalse())
		})
	})

	Describe("closure", func() {
		processEscalation := func() {
			t0 := time.Now()
			bot := logEvent("conv-1", model.EventTypeAssignmentChange, "BOT-1", t0)
			human := logEvent("conv-1", model.EventTypeAssignmentChange, "AGENT-7", t0.Add(time.Minute))
			Expect(detector.ProcessEvent(ctx, bot)).To(Succeed())
			Expect(detector.ProcessEvent(ctx, human)).To(Succeed())
		}

		It("decrements the counter and keeps escalation history", func() {
			processEscalation()
			closed := logEvent("conv-1", model.EventTypeStatusChange, "CLOSED", time.Now().Add(2*time.Minute))

			Expect(detector.ProcessEvent(ctx, closed)).To(Succeed())

			Expect(stores.escalatedCount()).To(BeZero())
			conv := stores.conversation("conv-1")
			Expect(conv.Status).To(Equal(model.ConversationStatusClosed))
			Expect(conv.Escalated).To(BeTrue())
			Expect(conv.EscalationCounted).To(BeFalse())
			Expect(conv.ClosedAt).NotTo(BeNil())
		})

		It("does not decrement twice for a replayed closure", func() {
			processEscalation()
			other := logEvent("conv-2", model.EventTypeAssignmentChange, "BOT-2", time.Now())
			otherHuman := logEvent("conv-2", model.EventTypeAssignmentChange, "AGENT-1", time.Now().Add(time.Second))
			Expect(detector.ProcessEvent(ctx, other)).To(Succeed())
			Expect(detector.ProcessEvent(ctx, otherHuman)).To(Succeed())
			Expect(stores.escalatedCount()).To(Equal(2))

			closed := logEvent("conv-1", model.EventTypeStatusChange, "CLOSED", time.Now().Add(2*time.Minute))
			Expect(detector.ProcessEvent(ctx, closed)).To(Succeed())
			Expect(detector.ProcessEvent(ctx, closed)).To(Succeed())

			Expect(stores.escalatedCount()).To(Equal(1))
		})

		It("floors the counter at zero for a closure with no counted escalation", func() {
			closed := logEvent("conv-1", model.EventTypeStatusChange, "CLOSED", time.Now())

			Expect(detector.ProcessEvent(ctx, closed)).To(Succeed())

			Expect(stores.escalatedCount()).To(BeNumerically("<=", 0))
		})
	})

	Describe("configuration", func() {
		It("ignores assignment events when no bot ids are configured", func() {
			detector = newDetector()
			human := logEvent("conv-1", model.EventTypeAssignmentChange, "AGENT-7", time.Now())

			Expect(detector.ProcessEvent(ctx, human)).To(Succeed())

			Expect(stores.conversation("conv-1")).To(BeNil())
		})

		It("ignores event types it does not understand", func() {
			unknown := logEvent("conv-1", "conversation.deleted", "", time.Now())

			Expect(detector.ProcessEvent(ctx, unknown)).To(Succeed())

			Expect(stores.conversation("conv-1")).To(BeNil())
		})
	})

	Describe("creation events", func() {
		It("materializes the conversation and raises a new chat alert", func() {
			created := logEvent("conv-1", model.EventTypeCreation, "", time.Now())

			Expect(detector.ProcessEvent(ctx, created)).To(Succeed())

			conv := stores.conversation("conv-1")
			Expect(conv).NotTo(BeNil())
			Expect(conv.Status).To(Equal(model.ConversationStatusOpen))

			dispatcher.Wait()
			Expect(stores.alertClasses()).To(ContainElement(model.AlertClassNewChat))
		})
	})
})
