package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/leecorbin/support-alert-system/internal/http/handler"
	"github.com/leecorbin/support-alert-system/internal/service"
	"github.com/leecorbin/support-alert-system/internal/store"
)

var _ = Describe("DebugHandler", func() {
	const apiKey = "secret-key"

	var (
		router *gin.Engine
		admin  *mockAdmin
	)

	setup := func(key string) {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		admin = &mockAdmin{}
		h := handler.NewDebugHandler(admin, key)

		group := router.Group("/debug")
		group.Use(h.RequireAdminAPIKey())
		group.GET("/conversations/:id", h.GetConversation)
		group.POST("/recalculate", h.Recalculate)
		group.POST("/replay/:id", h.ReplayConversation)
	}

	request := func(method, path, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		if key != "" {
			req.Header.Set("X-Admin-API-Key", key)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		setup(apiKey)
	})

	It("rejects requests without the API key", func() {
		w := request(http.MethodPost, "/debug/recalculate", "")
		Expect(w.Code).To(Equal(http.StatusUnauthorized))
	})

	It("rejects a wrong API key", func() {
		w := request(http.MethodPost, "/debug/recalculate", "wrong")
		Expect(w.Code).To(Equal(http.StatusUnauthorized))
	})

	It("accepts the key from a bearer token", func() {
		req := httptest.NewRequest(http.MethodPost, "/debug/recalculate", nil)
		req.Header.Set("Authorization", "Bearer "+apiKey)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
	})

	It("refuses all access when no key is configured", func() {
		setup("")
		w := request(http.MethodPost, "/debug/recalculate", apiKey)
		Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
	})

	It("returns the recalculated count", func() {
		admin.recalculateFn = func(_ context.Context) (int, error) { return 4, nil }

		w := request(http.MethodPost, "/debug/recalculate", apiKey)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring(`"escalated_sessions":4`))
	})

	It("returns 404 for an unknown conversation", func() {
		admin.getConversationFn = func(_ context.Context, _ string) (*service.ConversationDebug, error) {
			return nil, store.ErrNotFound
		}

		w := request(http.MethodGet, "/debug/conversations/conv-404", apiKey)

		Expect(w.Code).To(Equal(http.StatusNotFound))
	})

	It("replays a conversation and reports the event count", func() {
		admin.replayFn = func(_ context.Context, id string) (int, error) {
			Expect(id).To(Equal("conv-1"))
			return 5, nil
		}

		w := request(http.MethodPost, "/debug/replay/conv-1", apiKey)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring(`"events_replayed":5`))
	})
})
