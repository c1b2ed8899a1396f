package session

import (
	"context"
	"testing"
	"time"
)

func TestStateSetAndGet(t *testing.T) {
	state := NewState()

	if got := state.Get(); got != "" {
		t.Errorf("expected empty token initially, got %q", got)
	}

	state.Set("AbC123")
	if got := state.Get(); got != "AbC123" {
		t.Errorf("expected AbC123, got %q", got)
	}

	// A later observation always overwrites.
	state.Set("XyZ789")
	if got := state.Get(); got != "XyZ789" {
		t.Errorf("expected XyZ789 after overwrite, got %q", got)
	}
}

func TestStateSetIgnoresEmpty(t *testing.T) {
	state := NewState()
	state.Set("AbC123")
	state.Set("")
	if got := state.Get(); got != "AbC123" {
		t.Errorf("empty Set should be ignored, got %q", got)
	}
}

func TestStateReset(t *testing.T) {
	state := NewState()
	state.Set("AbC123")
	state.Reset()
	if got := state.Get(); got != "" {
		t.Errorf("expected empty token after Reset, got %q", got)
	}
}

func TestStateAwaitReturnsImmediatelyWhenSet(t *testing.T) {
	state := NewState()
	state.Set("AbC123")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	token, err := state.Await(ctx)
	if err != nil {
		t.Fatalf("Await returned error: %v", err)
	}
	if token != "AbC123" {
		t.Errorf("expected AbC123, got %q", token)
	}
}

func TestStateAwaitUnblocksOnSet(t *testing.T) {
	state := NewState()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan string, 1)
	go func() {
		token, err := state.Await(ctx)
		if err != nil {
			t.Errorf("Await returned error: %v", err)
		}
		done <- token
	}()

	// Give the waiter a moment to register before publishing.
	time.Sleep(10 * time.Millisecond)
	state.Set("AbC123")

	select {
	case token := <-done:
		if token != "AbC123" {
			t.Errorf("expected AbC123, got %q", token)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Await did not unblock after Set")
	}
}

func TestStateAwaitHonorsContext(t *testing.T) {
	state := NewState()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := state.Await(ctx)
	if err == nil {
		t.Fatal("expected context error from Await, got nil")
	}
}
