package server

import (
	"testing"
	"time"
)

func TestSessionStore_CreateGetDestroy(t *testing.T) {
	store := NewSessionStore(testEngine)

	a := store.Create()
	b := store.Create()
	if a.ID == b.ID {
		t.Fatal("sessions share an ID")
	}
	if store.Len() != 2 {
		t.Errorf("Len = %d, want 2", store.Len())
	}

	got, ok := store.Get(a.ID)
	if !ok || got != a {
		t.Errorf("Get(%s) = %v, %v", a.ID, got, ok)
	}
	if _, ok := store.Get("nope"); ok {
		t.Error("Get of unknown ID succeeded")
	}

	if !store.Destroy(a.ID) {
		t.Error("Destroy of live session returned false")
	}
	if store.Destroy(a.ID) {
		t.Error("second Destroy returned true")
	}
	if store.Len() != 1 {
		t.Errorf("Len after Destroy = %d, want 1", store.Len())
	}
}

func TestSessionStore_Sweep(t *testing.T) {
	store := NewSessionStore(testEngine)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	idle := store.Create()
	busy := store.Create()

	now = now.Add(20 * time.Minute)
	store.Get(busy.ID)
	now = now.Add(20 * time.Minute)

	if n := store.Sweep(30 * time.Minute); n != 1 {
		t.Errorf("Sweep removed %d sessions, want 1", n)
	}
	if _, ok := store.Get(idle.ID); ok {
		t.Error("idle session survived the sweep")
	}
	if _, ok := store.Get(busy.ID); !ok {
		t.Error("recently used session was swept")
	}
}

func TestSessionStore_StartSweeper(t *testing.T) {
	store := NewSessionStore(testEngine)
	store.Create()

	stop := store.StartSweeper(5*time.Millisecond, time.Nanosecond)
	defer stop()

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper never removed the idle session")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
