package consumer

import (
	"context"
	"testing"
	"time"
)

func TestWaitBeforeRetry_ReturnsPromptlyOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)

	go func() {
		done <- waitBeforeRetry(ctx, time.Hour)
	}()
	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("canceled wait must report false")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wait did not observe cancellation")
	}
}

func TestWaitBeforeRetry_ElapsesWhenNotCanceled(t *testing.T) {
	if !waitBeforeRetry(context.Background(), time.Millisecond) {
		t.Fatal("expired wait must report true")
	}
}
