package broadcast

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gitlab.com/kantoorbase/api/call-events-service/internal/model"
)

func testEvent(callID string) model.CallEvent {
	return model.CallEvent{
		Type: model.EventCallRinging,
		Data: model.CallEventData{CallID: callID, Status: model.StatusRinging},
	}
}

func TestPublish_NoSubscribers(t *testing.T) {
	b := New(4, zap.NewNop())

	// Must not block or panic with nobody listening.
	b.Publish(testEvent("c1"))
	assert.Equal(t, 0, b.Count())
}

func TestPublish_DeliversToAllSubscribers(t *testing.T) {
	b := New(4, zap.NewNop())

	ch1, unsub1 := b.Subscribe()
	ch2, unsub2 := b.Subscribe()
	defer unsub1()
	defer unsub2()

	require.Equal(t, 2, b.Count())

	b.Publish(testEvent("c1"))

	for _, ch := range []<-chan model.CallEvent{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, "c1", ev.Data.CallID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestSubscribe_NoBacklog(t *testing.T) {
	b := New(4, zap.NewNop())

	b.Publish(testEvent("before"))

	ch, unsub := b.Subscribe()
	defer unsub()

	b.Publish(testEvent("after"))

	ev := <-ch
	assert.Equal(t, "after", ev.Data.CallID)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra event %q", extra.Data.CallID)
	default:
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	b := New(4, zap.NewNop())

	ch, unsub := b.Subscribe()
	unsub()

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
	assert.Equal(t, 0, b.Count())

	// Second call is a no-op.
	unsub()

	// Publishing after unsubscribe must not panic.
	b.Publish(testEvent("c1"))
}

func TestPublish_DropsSlowSubscriber(t *testing.T) {
	b := New(1, zap.NewNop())

	slow, _ := b.Subscribe()
	fast, unsubFast := b.Subscribe()
	defer unsubFast()

	// Fill the slow subscriber's buffer; the fast one keeps up.
	b.Publish(testEvent("c1"))
	ev := <-fast
	assert.Equal(t, "c1", ev.Data.CallID)

	// The slow subscriber's channel is now full, so this publish drops it.
	b.Publish(testEvent("c2"))

	assert.Equal(t, 1, b.Count(), "slow subscriber should have been dropped")

	// The slow channel still holds the buffered event, then closes.
	ev, ok := <-slow
	require.True(t, ok)
	assert.Equal(t, "c1", ev.Data.CallID)
	_, ok = <-slow
	assert.False(t, ok, "dropped subscriber's channel should be closed")

	// The fast subscriber keeps receiving.
	ev = <-fast
	assert.Equal(t, "c2", ev.Data.CallID)
	b.Publish(testEvent("c3"))
	ev = <-fast
	assert.Equal(t, "c3", ev.Data.CallID)
}

func TestPublish_PreservesOrderPerSubscriber(t *testing.T) {
	b := New(16, zap.NewNop())

	ch, unsub := b.Subscribe()
	defer unsub()

	for i := 0; i < 10; i++ {
		b.Publish(testEvent(fmt.Sprintf("c%d", i)))
	}
	for i := 0; i < 10; i++ {
		ev := <-ch
		assert.Equal(t, fmt.Sprintf("c%d", i), ev.Data.CallID)
	}
}

func TestClose_DropsAllSubscribers(t *testing.T) {
	b := New(4, zap.NewNop())

	ch1, _ := b.Subscribe()
	ch2, _ := b.Subscribe()

	b.Close()

	_, ok := <-ch1
	assert.False(t, ok)
	_, ok = <-ch2
	assert.False(t, ok)
	assert.Equal(t, 0, b.Count())

	b.Publish(testEvent("c1"))
}

func TestBroadcaster_ConcurrentPublishSubscribe(t *testing.T) {
	b := New(8, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, unsub := b.Subscribe()
			for range ch {
			}
			_ = unsub
		}()
	}

	for i := 0; i < 100; i++ {
		b.Publish(testEvent(fmt.Sprintf("c%d", i)))
	}
	b.Close()
	wg.Wait()
}
