package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/miragesec/mirage/pkg/session"
	"github.com/miragesec/mirage/pkg/store"
)

func TestDispatchSubmitsAndRecordsReceipt(t *testing.T) {
	var got submission
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/log-threat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		json.NewEncoder(w).Encode(receipt{TxHash: "0xdead", HashID: "h-1"})
	}))
	defer srv.Close()

	records := store.NewMemoryStore()
	defer records.Close()

	ctx := context.Background()
	seed := session.NewIdentity("mallory", time.Now().UTC())
	seed.TotalQueries = 7
	if err := records.PutSession(ctx, seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	d := NewDispatcher(srv.URL, 4, records)
	d.Dispatch("mallory", 0.97, 12.5)
	d.Wait()

	if got.Identity != "mallory" || got.ThreatScore != 0.97 || got.DurationMinutes != 12.5 {
		t.Fatalf("unexpected submission: %+v", got)
	}

	events, err := records.ListLedgerEvents(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].Status != "accepted" || events[0].TxHash != "0xdead" {
		t.Fatalf("unexpected ledger events: %+v", events)
	}

	sess, err := records.GetSession(ctx, "mallory")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.LedgerTx != "0xdead" || sess.LedgerHashID != "h-1" {
		t.Fatalf("expected receipt on session, got %+v", sess)
	}
	if sess.TotalQueries != 7 {
		t.Fatalf("receipt write must not touch other session fields, got %+v", sess)
	}
}

func TestDispatchSwallowsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "ledger down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	records := store.NewMemoryStore()
	defer records.Close()

	d := NewDispatcher(srv.URL, 4, records)
	d.Dispatch("mallory", 0.97, 12.5)
	d.Wait()

	events, err := records.ListLedgerEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].Status != "rejected:500" {
		t.Fatalf("expected rejected event, got %+v", events)
	}
}

func TestDispatchSwallowsConnectionFailure(t *testing.T) {
	records := store.NewMemoryStore()
	defer records.Close()

	// Nothing is listening here.
	d := NewDispatcher("http://127.0.0.1:1", 4, records)
	d.Dispatch("mallory", 0.97, 12.5)
	d.Wait()

	events, err := records.ListLedgerEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].Status != "failed" {
		t.Fatalf("expected failed event, got %+v", events)
	}
}

func TestDispatchDropsAtCapacity(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, 1, nil)
	d.Dispatch("u1", 0.99, 15) // occupies the only slot
	d.Dispatch("u2", 0.99, 15) // dropped immediately
	close(release)
	d.Wait()

	if n := d.DroppedCount(); n != 1 {
		t.Fatalf("expected 1 dropped submission, got %d", n)
	}
}

func TestDispatchDoesNotBlockCaller(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, 4, nil)
	start := time.Now()
	d.Dispatch("u1", 0.99, 15)
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("dispatch blocked the caller for %v", elapsed)
	}
	d.Wait()
}
