package signaling

import (
	"sync"
	"testing"

	"go.uber.org/zap"
)

// TestSendMessageRaceWithCloseSendDoesNotPanic guards against a
// check-then-act race: SendMessage must never observe closed == false
// and then send on a channel that closeSend has since closed.
func TestSendMessageRaceWithCloseSendDoesNotPanic(t *testing.T) {
	c := newTestClient("c1", "room1", "u1")
	c.logger = zap.NewNop()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			c.SendMessage(Message{})
		}
	}()

	go func() {
		defer wg.Done()
		c.closeSend()
	}()

	wg.Wait()
}
