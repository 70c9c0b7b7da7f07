package progress

import (
	"testing"

	"github.com/google/uuid"

	"github.com/studymill/studymill-backend/internal/domain"
	"github.com/studymill/studymill-backend/internal/platform/logger"
)

func hubTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func TestHubRoutesByChannel(t *testing.T) {
	h := NewHub(hubTestLogger(t))
	owner := uuid.New()
	other := uuid.New()

	mine := h.Subscribe(owner.String())
	theirs := h.Subscribe(other.String())
	defer h.Unsubscribe(mine)
	defer h.Unsubscribe(theirs)

	h.Broadcast(Message{Channel: owner.String(), Event: Event{JobID: uuid.New(), Status: domain.JobProcessing, Progress: 0.5}})

	select {
	case msg := <-mine.Outbound:
		if msg.Event.Status != domain.JobProcessing {
			t.Fatalf("got %+v", msg.Event)
		}
	default:
		t.Fatal("subscriber did not receive its channel's message")
	}
	select {
	case msg := <-theirs.Outbound:
		t.Fatalf("message leaked across channels: %+v", msg)
	default:
	}
}

func TestHubDropsMessagesForSlowClient(t *testing.T) {
	h := NewHub(hubTestLogger(t))
	owner := uuid.New()
	c := h.Subscribe(owner.String())
	defer h.Unsubscribe(c)

	// Overfill past the outbound buffer; Broadcast must not block.
	for i := 0; i < cap(c.Outbound)+5; i++ {
		h.Broadcast(Message{Channel: owner.String(), Event: Event{Progress: float64(i)}})
	}
	if len(c.Outbound) != cap(c.Outbound) {
		t.Fatalf("buffered %d, want full buffer %d", len(c.Outbound), cap(c.Outbound))
	}
}

func TestHubUnsubscribeClosesOutbound(t *testing.T) {
	h := NewHub(hubTestLogger(t))
	c := h.Subscribe("chan")
	h.Unsubscribe(c)
	h.Unsubscribe(c) // idempotent

	if _, open := <-c.Outbound; open {
		t.Fatal("outbound channel still open after unsubscribe")
	}

	// Broadcasting to a drained channel is a no-op, not a panic.
	h.Broadcast(Message{Channel: "chan"})
}

func TestHubSinkDeliversToOwnerChannel(t *testing.T) {
	h := NewHub(hubTestLogger(t))
	owner := uuid.New()
	c := h.Subscribe(owner.String())
	defer h.Unsubscribe(c)

	NewHubSink(h).Report(owner, Event{JobID: uuid.New(), Status: domain.JobCompleted, Progress: 1})

	select {
	case msg := <-c.Outbound:
		if msg.Event.Status != domain.JobCompleted {
			t.Fatalf("got %+v", msg.Event)
		}
	default:
		t.Fatal("hub sink did not deliver")
	}
}
