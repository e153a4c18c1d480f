package ws

import (
	"sync"
	"testing"
	"time"
)

func newTestClient() *client {
	return &client{send: make(chan []byte, 1)}
}

// A slow callback for a disconnect must not be overtaken by the callback
// for a connect that happened after it.
func TestPresence_DeliveredInOrder(t *testing.T) {
	h := New(nil, 0)

	var (
		mu       sync.Mutex
		last     = -1
		zeroSeen = make(chan struct{})
		once     sync.Once
	)
	h.OnPresence(func(n int) {
		if n == 0 {
			once.Do(func() { close(zeroSeen) })
			time.Sleep(20 * time.Millisecond)
		}
		mu.Lock()
		last = n
		mu.Unlock()
	})

	a := newTestClient()
	h.register(a)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.unregister(a)
	}()
	go func() {
		defer wg.Done()
		<-zeroSeen
		h.register(newTestClient())
	}()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if got := h.Count(); got != 1 {
		t.Fatalf("clients connected: want 1, got %d", got)
	}
	if last != 1 {
		t.Errorf("last presence reported: want 1, got %d", last)
	}
}

func TestPresence_UnregisterTwiceReportsOnce(t *testing.T) {
	h := New(nil, 0)

	var calls []int
	h.OnPresence(func(n int) { calls = append(calls, n) })

	c := newTestClient()
	h.register(c)
	h.unregister(c)
	h.unregister(c)

	if len(calls) != 2 || calls[0] != 1 || calls[1] != 0 {
		t.Errorf("presence calls: want [1 0], got %v", calls)
	}
}
