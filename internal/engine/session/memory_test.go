package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/nextmove-ai/convocore/internal/engine/model"
)

func TestMemoryRepositoryRoundTrip(t *testing.T) {
	repo := NewMemoryRepository(time.Hour)
	defer repo.Close()
	ctx := context.Background()

	if s, err := repo.Load(ctx, "u1", "web"); err != nil || s != nil {
		t.Fatalf("fresh load = (%v, %v), want (nil, nil)", s, err)
	}

	sess := model.NewSession("u1", "web")
	sess.PendingIntent = "create_quote"
	if err := repo.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.Load(ctx, "u1", "web")
	if err != nil || got == nil {
		t.Fatalf("load = (%v, %v)", got, err)
	}
	if got.PendingIntent != "create_quote" {
		t.Fatalf("got %+v", got)
	}

	// Loads return copies; mutating one must not leak into the store.
	got.PendingIntent = "mutated"
	again, _ := repo.Load(ctx, "u1", "web")
	if again.PendingIntent != "create_quote" {
		t.Fatal("load must return an isolated copy")
	}
}

func TestMemoryRepositoryTTLExpiry(t *testing.T) {
	repo := NewMemoryRepository(10 * time.Millisecond)
	defer repo.Close()
	ctx := context.Background()

	sess := model.NewSession("u1", "web")
	if err := repo.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	if got, err := repo.Load(ctx, "u1", "web"); err != nil || got != nil {
		t.Fatalf("expired load = (%v, %v), want (nil, nil)", got, err)
	}
}

func TestMemoryRepositoryDelete(t *testing.T) {
	repo := NewMemoryRepository(time.Hour)
	defer repo.Close()
	ctx := context.Background()

	_ = repo.Save(ctx, model.NewSession("u1", "web"))
	_ = repo.AppendMessage(ctx, "u1", "web", schema.UserMessage("bonjour"))
	if err := repo.Delete(ctx, "u1", "web"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if got, _ := repo.Load(ctx, "u1", "web"); got != nil {
		t.Fatal("session survived delete")
	}
	if msgs, _ := repo.History(ctx, "u1", "web", 10); len(msgs) != 0 {
		t.Fatalf("history survived delete: %v", msgs)
	}
}

func TestMemoryRepositoryHistoryWindow(t *testing.T) {
	repo := NewMemoryRepository(time.Hour)
	defer repo.Close()
	ctx := context.Background()

	_ = repo.AppendMessage(ctx, "u1", "web", schema.UserMessage("un"))
	_ = repo.AppendMessage(ctx, "u1", "web", schema.AssistantMessage("deux", nil))
	_ = repo.AppendMessage(ctx, "u1", "web", schema.UserMessage("trois"))

	msgs, err := repo.History(ctx, "u1", "web", 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "deux" || msgs[1].Content != "trois" {
		t.Fatalf("got %v, want the last two messages", msgs)
	}
}

func TestKeyedMutexSerializesSameSession(t *testing.T) {
	var km KeyedMutex
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("u1", "web")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("counter = %d, want 50", counter)
	}
}

func TestKeyedMutexUnlock(t *testing.T) {
	var km KeyedMutex
	unlock := km.Lock("u1", "web")
	unlock()

	done := make(chan struct{})
	go func() {
		unlock := km.Lock("u1", "web")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock not released")
	}
}
