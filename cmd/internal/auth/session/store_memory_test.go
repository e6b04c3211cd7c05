package session

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	first, err := st.Create(ctx, now, "u1", Client{IP: net.ParseIP("203.0.113.7"), UserAgent: "curl/8"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, _ := st.Create(ctx, now.Add(time.Minute), "u1", Client{})
	other, _ := st.Create(ctx, now, "u2", Client{})

	if len(first.ID) != 26 || !first.Valid {
		t.Fatalf("unexpected session %+v", first)
	}

	list, _ := st.ListActiveByUser(ctx, "u1")
	if len(list) != 2 || list[0].ID != first.ID || list[1].ID != second.ID {
		t.Fatalf("expected oldest first, got %+v", list)
	}
	if !list[0].IP.Equal(net.ParseIP("203.0.113.7")) {
		t.Fatalf("ip not recorded: %v", list[0].IP)
	}

	if err := st.Invalidate(ctx, now, first.ID); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if err := st.Invalidate(ctx, now, first.ID); err != nil {
		t.Fatalf("second Invalidate: %v", err)
	}
	if _, err := st.Get(ctx, first.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("invalid session must not be returned, got %v", err)
	}
	if err := st.Touch(ctx, now, first.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Touch on invalid session: %v", err)
	}

	ids, _ := st.InvalidateAllForUser(ctx, now, "u1")
	if len(ids) != 1 || ids[0] != second.ID {
		t.Fatalf("InvalidateAllForUser=%v", ids)
	}

	active, _ := st.ListActive(ctx)
	if len(active) != 1 || active[0] != (Entry{SessionID: other.ID, UserID: "u2"}) {
		t.Fatalf("ListActive=%v", active)
	}

	if err := st.Delete(ctx, other.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := st.Delete(ctx, other.ID); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := st.Get(ctx, other.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("deleted session returned: %v", err)
	}
}
