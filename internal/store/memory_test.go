package store

import (
	"sync"
	"testing"
	"time"
)

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	if store == nil {
		t.Fatal("NewMemoryStore() = nil")
	}

	if len(store.GetAll()) != 0 {
		t.Errorf("GetAll() = %v items, want 0", len(store.GetAll()))
	}
}

func TestMemoryStore_Update(t *testing.T) {
	store := NewMemoryStore()

	store.Update(RunStatus{
		RunID:     "run-1",
		TaskID:    "t1",
		State:     "processing",
		Files:     2,
		Processed: 1,
		Total:     2,
		StartedAt: time.Now(),
	})

	all := store.GetAll()
	if len(all) != 1 {
		t.Fatalf("GetAll() = %v items, want 1", len(all))
	}
	if all[0].RunID != "run-1" {
		t.Errorf("GetAll()[0].RunID = %v, want %v", all[0].RunID, "run-1")
	}
	if all[0].State != "processing" {
		t.Errorf("GetAll()[0].State = %v, want %v", all[0].State, "processing")
	}
}

func TestMemoryStore_UpdateOverwrites(t *testing.T) {
	store := NewMemoryStore()

	store.Update(RunStatus{RunID: "run-1", State: "uploading"})
	store.Update(RunStatus{RunID: "run-1", State: "completed"})

	all := store.GetAll()
	if len(all) != 1 {
		t.Fatalf("GetAll() = %v items, want 1", len(all))
	}
	if all[0].State != "completed" {
		t.Errorf("GetAll()[0].State = %v, want %v", all[0].State, "completed")
	}
}

func TestMemoryStore_Get(t *testing.T) {
	store := NewMemoryStore()
	store.Update(RunStatus{RunID: "run-1", State: "failed"})

	got, ok := store.Get("run-1")
	if !ok {
		t.Fatal("Get(run-1) ok = false")
	}
	if got.State != "failed" {
		t.Errorf("Get(run-1).State = %v, want failed", got.State)
	}

	if _, ok := store.Get("missing"); ok {
		t.Error("Get(missing) ok = true")
	}
}

func TestMemoryStore_GetAllOrderedByStart(t *testing.T) {
	store := NewMemoryStore()
	base := time.Now()

	store.Update(RunStatus{RunID: "c", StartedAt: base.Add(2 * time.Second)})
	store.Update(RunStatus{RunID: "a", StartedAt: base})
	store.Update(RunStatus{RunID: "b", StartedAt: base.Add(time.Second)})

	all := store.GetAll()
	if len(all) != 3 {
		t.Fatalf("GetAll() = %v items, want 3", len(all))
	}
	for i, want := range []string{"a", "b", "c"} {
		if all[i].RunID != want {
			t.Errorf("GetAll()[%d].RunID = %v, want %v", i, all[i].RunID, want)
		}
	}
}

func TestMemoryStore_Subscribe(t *testing.T) {
	store := NewMemoryStore()

	ch := store.Subscribe()
	if ch == nil {
		t.Fatal("Subscribe() = nil")
	}

	go func() {
		store.Update(RunStatus{RunID: "run-1", State: "uploading"})
	}()

	select {
	case status := <-ch:
		if status.RunID != "run-1" {
			t.Errorf("received RunID = %v, want %v", status.RunID, "run-1")
		}
	case <-time.After(1 * time.Second):
		t.Error("Subscribe() channel did not receive update")
	}
}

func TestMemoryStore_MultipleSubscribers(t *testing.T) {
	store := NewMemoryStore()

	ch1 := store.Subscribe()
	ch2 := store.Subscribe()
	ch3 := store.Subscribe()

	go func() {
		store.Update(RunStatus{RunID: "run-1"})
	}()

	received := 0
	timeout := time.After(1 * time.Second)

	for received < 3 {
		select {
		case <-ch1:
			received++
		case <-ch2:
			received++
		case <-ch3:
			received++
		case <-timeout:
			t.Fatalf("Only received %d/3 updates", received)
		}
	}
}

func TestMemoryStore_Unsubscribe(t *testing.T) {
	store := NewMemoryStore()

	ch := store.Subscribe()
	store.Unsubscribe(ch)
	store.Unsubscribe(ch) // second call is a no-op

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("Unsubscribe() channel should be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Unsubscribe() channel should be closed immediately")
	}
}

func TestMemoryStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	store := NewMemoryStore()

	// never read from this one
	_ = store.Subscribe()
	ch2 := store.Subscribe()

	done := make(chan bool)
	go func() {
		for i := 0; i < 2*subscriberBuffer; i++ {
			store.Update(RunStatus{RunID: "run-1", UploadPercent: i % 101})
		}
		done <- true
	}()

	go func() {
		for range ch2 {
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Update() blocked on slow subscriber")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()

	var wg sync.WaitGroup
	numGoroutines := 10
	numUpdates := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numUpdates; j++ {
				store.Update(RunStatus{RunID: "run-1", State: "processing", Processed: j})
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numUpdates; j++ {
				_ = store.GetAll()
				_, _ = store.Get("run-1")
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch := store.Subscribe()
			time.Sleep(10 * time.Millisecond)
			store.Unsubscribe(ch)
		}()
	}

	wg.Wait()
}
