package webhook_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/leecorbin/support-alert-system/internal/http/handler/webhook"
	"github.com/leecorbin/support-alert-system/internal/service"
)

type mockIngest struct {
	mu      sync.Mutex
	batches [][]service.InboundEvent
}

func (m *mockIngest) Ingest(_ context.Context, events []service.InboundEvent) (service.IngestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, events)
	return service.IngestResult{Accepted: len(events)}, nil
}

func (m *mockIngest) received() []service.InboundEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []service.InboundEvent
	for _, batch := range m.batches {
		all = append(all, batch...)
	}
	return all
}

var _ = Describe("HelpdeskWebhookHandler", func() {
	var (
		router *gin.Engine
		ingest *mockIngest
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		ingest = &mockIngest{}
		h := webhook.NewHelpdeskWebhookHandler(ingest, nil)
		router.POST("/webhooks/helpdesk", h.HandleEvents)
	})

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/helpdesk", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("accepts an event array and forwards it to ingest", func() {
		w := post(`[
			{"eventId": "ev-1", "subscriptionType": "conversation.propertyChange", "objectId": 12345, "propertyName": "assignedTo", "propertyValue": "AGENT-7", "occurredAt": 1756300000000},
			{"eventId": "ev-2", "subscriptionType": "conversation.propertyChange", "objectId": "67890", "propertyName": "status", "propertyValue": "CLOSED", "occurredAt": 1756300001000}
		]`)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring(`"success":true`))

		Eventually(ingest.received, time.Second).Should(HaveLen(2))

		events := ingest.received()
		Expect(events[0].ConversationID).To(Equal("12345"))
		Expect(events[0].PropertyValue).To(Equal("AGENT-7"))
		Expect(events[1].ConversationID).To(Equal("67890"))
	})

	It("accepts a single event object", func() {
		w := post(`{"eventId": "ev-1", "subscriptionType": "conversation.creation", "objectId": 555, "occurredAt": 1756300000000}`)

		Expect(w.Code).To(Equal(http.StatusOK))
		Eventually(ingest.received, time.Second).Should(HaveLen(1))
		Expect(ingest.received()[0].SubscriptionType).To(Equal("conversation.creation"))
	})

	It("rejects malformed JSON with 400", func() {
		w := post(`{"eventId": `)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Consistently(ingest.received, 100*time.Millisecond).Should(BeEmpty())
	})

	It("rejects an empty body with 400", func() {
		w := post(``)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("drops events without an object id but still returns 200", func() {
		w := post(`[{"eventId": "ev-1", "subscriptionType": "conversation.propertyChange", "propertyName": "assignedTo", "propertyValue": "AGENT-7"}]`)

		Expect(w.Code).To(Equal(http.StatusOK))
		Consistently(ingest.received, 100*time.Millisecond).Should(BeEmpty())
	})

	It("parses epoch millisecond timestamps", func() {
		post(`{"eventId": "ev-1", "subscriptionType": "conversation.creation", "objectId": 1, "occurredAt": 1756300000000}`)

		Eventually(ingest.received, time.Second).Should(HaveLen(1))
		occurred := ingest.received()[0].OccurredAt
		Expect(occurred.Year()).To(Equal(2025))
		Expect(occurred.Location()).To(Equal(time.UTC))
	})
})
