package redis

import (
	"context"
	"errors"
	"fmt"
	"notes-collab/core"
	"os"
	"sync"
	"sync/atomic"
	"testing"
)

// These tests need a live server: REDIS_TEST_URL=redis://localhost:6379/15
func newTestStore(t *testing.T) *redisStore {
	t.Helper()
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	store, err := NewDocumentStore(context.Background(), url)
	if err != nil {
		t.Fatalf("NewDocumentStore() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateReadAccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc, err := store.Create(ctx, "owner", "hello")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	t.Cleanup(func() {
		store.rdb.Del(ctx, documentKey(doc.ID), collaboratorsKey(doc.ID))
	})

	read, err := store.Read(ctx, doc.ID)
	if err != nil || *read != *doc {
		t.Fatalf("Read() = %+v, %v; want %+v", read, err, doc)
	}

	if err := store.SetCollaborator(ctx, doc.ID, "viewer", core.PermissionViewer); err != nil {
		t.Fatalf("SetCollaborator() failed: %v", err)
	}
	access, err := store.GetAccess(ctx, doc.ID, "viewer")
	if err != nil || !access.CanView() || access.CanEdit() {
		t.Errorf("GetAccess(viewer) = %+v, %v", access, err)
	}
	access, err = store.GetAccess(ctx, doc.ID, "stranger")
	if err != nil || access.CanView() {
		t.Errorf("GetAccess(stranger) = %+v, %v", access, err)
	}
}

func TestCompareAndWrite_Concurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc, _ := store.Create(ctx, "owner", "")
	t.Cleanup(func() { store.rdb.Del(ctx, documentKey(doc.ID)) })

	var wg sync.WaitGroup
	var successes int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := store.CompareAndWrite(ctx, doc.ID, doc.Version, fmt.Sprint(n))
			if err == nil {
				atomic.AddInt32(&successes, 1)
			} else if !errors.Is(err, core.ErrVersionMismatch) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("expected exactly one successful write, got %d", successes)
	}
}
