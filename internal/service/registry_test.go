package service

import (
	"testing"

	"github.com/google/uuid"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(testEmitter(), testLogger())
}

func TestInsertAndFetch(t *testing.T) {
	r := testRegistry(t)
	svc := shellService(t, "one", "true")
	id := r.Insert(svc)

	got, ok := r.Fetch(id)
	if !ok {
		t.Fatal("expected fetch to succeed")
	}
	if got.Name() != "one" {
		t.Errorf("name = %q, want one", got.Name())
	}
}

func TestFetchMissing(t *testing.T) {
	r := testRegistry(t)
	if _, ok := r.Fetch(uuid.New()); ok {
		t.Error("expected fetch to fail for unknown id")
	}
}

func TestRemove(t *testing.T) {
	r := testRegistry(t)
	id := r.Insert(shellService(t, "gone", "true"))
	r.Remove(id)
	if _, ok := r.Fetch(id); ok {
		t.Error("expected fetch to fail after remove")
	}
	r.Remove(id) // second remove is a no-op
}

func TestListSnapshots(t *testing.T) {
	r := testRegistry(t)
	r.Insert(shellService(t, "a", "true"))
	r.Insert(shellService(t, "b", "true"))

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("list len = %d, want 2", len(list))
	}
	for _, entry := range list {
		if entry.Status != StatusCreated {
			t.Errorf("entry %s status = %s, want created", entry.Name, entry.Status)
		}
		if entry.ID == (uuid.UUID{}) {
			t.Errorf("entry %s has zero id", entry.Name)
		}
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestStopAll(t *testing.T) {
	r := testRegistry(t)

	running := shellService(t, "running", "sleep 10")
	idle := shellService(t, "idle", "true")
	r.Insert(running)
	r.Insert(idle)

	if err := running.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}

	r.StopAll()
	waitForStatus(t, running, StatusExited)
	if got := idle.Status(); got != StatusCreated {
		t.Errorf("idle status = %s, want created", got)
	}
}
