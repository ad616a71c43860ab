package streamer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	s := New(nil)
	a := s.Subscribe("p1")
	b := s.Subscribe("p1")
	defer a.Close()
	defer b.Close()

	require.Equal(t, 2, s.Publish("p1", []byte("done")))
	require.Equal(t, "done", string(<-a.C))
	require.Equal(t, "done", string(<-b.C))
}

func TestPublishIsScopedToProblem(t *testing.T) {
	s := New(nil)
	a := s.Subscribe("p1")
	b := s.Subscribe("p2")
	defer a.Close()
	defer b.Close()

	require.Equal(t, 1, s.Publish("p1", []byte("x")))
	require.Equal(t, "x", string(<-a.C))
	select {
	case <-b.C:
		t.Fatal("subscriber of another problem received the frame")
	default:
	}
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	s := New(nil)
	require.Zero(t, s.Publish("nobody", []byte("x")))
}

func TestSlowSubscriberDropsNewest(t *testing.T) {
	s := New(nil)
	sub := s.Subscribe("p1")
	defer sub.Close()

	for i := 0; i < SubscriberBuffer; i++ {
		require.Equal(t, 1, s.Publish("p1", []byte(fmt.Sprintf("f%d", i))))
	}
	// Channel is full now; the next frame is dropped for this subscriber.
	require.Zero(t, s.Publish("p1", []byte("overflow")))

	for i := 0; i < SubscriberBuffer; i++ {
		require.Equal(t, fmt.Sprintf("f%d", i), string(<-sub.C), "arrival order preserved")
	}
	select {
	case extra := <-sub.C:
		t.Fatalf("unexpected frame %q after overflow", extra)
	default:
	}
}

func TestCloseIsIdempotentAndPrunes(t *testing.T) {
	s := New(nil)
	a := s.Subscribe("p1")
	b := s.Subscribe("p1")

	require.Equal(t, 2, s.Subscribers("p1"))
	a.Close()
	a.Close()
	require.Equal(t, 1, s.Subscribers("p1"))
	b.Close()
	require.Zero(t, s.Subscribers("p1"))

	require.Zero(t, s.Publish("p1", []byte("x")), "map entry pruned")
}

func TestSubscriberIDsAreUnique(t *testing.T) {
	s := New(nil)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		sub := s.Subscribe("p1")
		require.False(t, seen[sub.ID])
		seen[sub.ID] = true
		sub.Close()
	}
}

func TestConcurrentPublishAndClose(t *testing.T) {
	s := New(nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		sub := s.Subscribe("p1")
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Publish("p1", []byte("frame"))
			}
		}()
		go func(sub *Subscription) {
			defer wg.Done()
			sub.Close()
		}(sub)
	}
	wg.Wait()
	require.Zero(t, s.Subscribers("p1"))
}

func TestRelayRepublishesFrames(t *testing.T) {
	s := New(nil)
	sub := s.Subscribe("p1")
	defer sub.Close()

	frames := make(chan Frame, 3)
	frames <- Frame{ProblemID: "p1", Payload: []byte("relayed")}
	frames <- Frame{ProblemID: "", Payload: []byte("ignored")}
	close(frames)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Relay(context.Background(), frames)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not return on channel close")
	}
	require.Equal(t, "relayed", string(<-sub.C))
}

func TestRelayStopsOnContextCancel(t *testing.T) {
	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Relay(ctx, make(chan Frame))
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not return on cancel")
	}
}
