package service_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/leecorbin/support-alert-system/internal/model"
	"github.com/leecorbin/support-alert-system/internal/service"
)

// gatedAlertStore holds every Append until release is closed, standing in for
// a slow or down audit sink.
type gatedAlertStore struct {
	release   chan struct{}
	appendErr error

	mu       sync.Mutex
	appended []model.Alert
}

func newGatedAlertStore() *gatedAlertStore {
	return &gatedAlertStore{release: make(chan struct{})}
}

func (s *gatedAlertStore) Append(_ context.Context, alert *model.Alert) error {
	<-s.release
	if s.appendErr != nil {
		return s.appendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended = append(s.appended, *alert)
	return nil
}

func (s *gatedAlertStore) ListRecent(_ context.Context, _ int32) ([]model.Alert, error) {
	return nil, nil
}

func (s *gatedAlertStore) snapshot() []model.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Alert(nil), s.appended...)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ = Describe("AlertDispatcher", func() {
	var (
		ctx  context.Context
		sink *gatedAlertStore
		out  *syncBuffer
	)

	BeforeEach(func() {
		ctx = context.Background()
		sink = newGatedAlertStore()
		out = &syncBuffer{}
	})

	newDispatcher := func() service.AlertDispatcher {
		return service.NewAlertDispatcher(sink, slog.New(slog.NewTextHandler(out, nil)))
	}

	It("delivers the console line while the audit sink is still writing", func() {
		dispatcher := newDispatcher()

		dispatcher.Dispatch(ctx, model.AlertClassEscalation, service.AlertDetails{
			ConversationID: "conv-1",
			EscalatedFrom:  "BOT-1",
			EscalatedTo:    "AGENT-7",
		})

		// The audit write is gated, yet the console sink must land.
		Eventually(out.String).Should(ContainSubstring("ALERT:"))
		Expect(sink.snapshot()).To(BeEmpty())

		close(sink.release)
		dispatcher.Wait()

		appended := sink.snapshot()
		Expect(appended).To(HaveLen(1))
		Expect(appended[0].Class).To(Equal(model.AlertClassEscalation))
		Expect(appended[0].Message).To(ContainSubstring("escalated from bot BOT-1 to human agent AGENT-7"))
	})

	It("never surfaces an audit sink failure to the caller", func() {
		sink.appendErr = errors.New("audit sink down")
		close(sink.release)
		dispatcher := newDispatcher()

		dispatcher.Dispatch(ctx, model.AlertClassClosure, service.AlertDetails{ConversationID: "conv-2"})
		dispatcher.Wait()

		Expect(sink.snapshot()).To(BeEmpty())
		Eventually(out.String).Should(ContainSubstring("failed to record alert"))
	})
})
