package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Johnnas12/chatbot-ui-galaxy/internal/model"
)

func receive(t *testing.T, ch <-chan model.SessionEvent) model.SessionEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return model.SessionEvent{}
	}
}

func TestPublishReachesAllSubscribersOfUser(t *testing.T) {
	h := NewHub()

	ch1, cancel1 := h.Subscribe(1)
	defer cancel1()
	ch2, cancel2 := h.Subscribe(1)
	defer cancel2()

	ev := model.SessionEvent{Type: model.EventUpdate, UserID: 1, Session: model.SessionView{ID: 7}}
	h.Publish(ev)

	assert.Equal(t, uint(7), receive(t, ch1).Session.ID)
	assert.Equal(t, uint(7), receive(t, ch2).Session.ID)
}

func TestPublishIsScopedPerUser(t *testing.T) {
	h := NewHub()

	mine, cancelMine := h.Subscribe(1)
	defer cancelMine()
	theirs, cancelTheirs := h.Subscribe(2)
	defer cancelTheirs()

	h.Publish(model.SessionEvent{Type: model.EventInsert, UserID: 1, Session: model.SessionView{ID: 3}})

	assert.Equal(t, uint(3), receive(t, mine).Session.ID)
	select {
	case ev := <-theirs:
		t.Fatalf("unexpected event for other user: %+v", ev)
	default:
	}
}

func TestCancelStopsDeliveryAndClosesChannel(t *testing.T) {
	h := NewHub()

	ch, cancel := h.Subscribe(1)
	cancel()

	h.Publish(model.SessionEvent{Type: model.EventDelete, UserID: 1})

	_, open := <-ch
	assert.False(t, open)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub()

	ch, cancel := h.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer+10; i++ {
			h.Publish(model.SessionEvent{Type: model.EventUpdate, UserID: 1, Session: model.SessionView{ID: uint(i)}})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	require.Len(t, ch, subscriberBuffer)
}
