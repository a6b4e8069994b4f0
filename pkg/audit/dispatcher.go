// Package audit submits tier-3 threat notifications to the external audit
// ledger. Submission is fire and forget: the request path never waits on the
// ledger and never fails because of it.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/miragesec/mirage/pkg/httputil"
	"github.com/miragesec/mirage/pkg/session"
	"github.com/miragesec/mirage/pkg/store"
)

// submission is the wire payload for the ledger's /log-threat endpoint.
type submission struct {
	Identity        string    `json:"identity"`
	ThreatScore     float64   `json:"threat_score"`
	DurationMinutes float64   `json:"duration_minutes"`
	Timestamp       time.Time `json:"timestamp"`
}

// receipt is the ledger's acknowledgement. Fields are optional; an empty body
// with a 2xx status still counts as accepted.
type receipt struct {
	TxHash string `json:"tx_hash"`
	HashID string `json:"hash_id"`
}

// Dispatcher posts threat notifications to the ledger with a bounded number of
// in-flight submissions. At capacity new submissions are dropped and counted.
type Dispatcher struct {
	url     string
	client  *http.Client
	records store.RecordStore
	sem     *httputil.Semaphore
	wg      sync.WaitGroup
}

// NewDispatcher builds a dispatcher targeting baseURL. maxInFlight caps
// concurrent submissions; records receives a LedgerEvent per attempt and may
// be nil.
func NewDispatcher(baseURL string, maxInFlight int, records store.RecordStore) *Dispatcher {
	return &Dispatcher{
		url:     baseURL + "/log-threat",
		client:  httputil.LedgerClient(),
		records: records,
		sem:     httputil.NewSemaphore(maxInFlight),
	}
}

// Dispatch schedules one ledger submission and returns immediately. The
// submission runs on a detached context so a cancelled request cannot abort
// an in-flight ledger call.
func (d *Dispatcher) Dispatch(identity string, score, durationMinutes float64) {
	if !d.sem.TryAcquire() {
		log.Printf("[LEDGER] dropped submission for %s, %d in flight (%d dropped total)",
			identity, d.sem.InUse(), d.sem.DroppedCount())
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release()
		d.submit(context.Background(), identity, score, durationMinutes)
	}()
}

// submit performs the HTTP call and records the outcome. Errors are logged,
// never returned.
func (d *Dispatcher) submit(ctx context.Context, identity string, score, durationMinutes float64) {
	now := time.Now().UTC()
	payload, err := json.Marshal(submission{
		Identity:        identity,
		ThreatScore:     score,
		DurationMinutes: durationMinutes,
		Timestamp:       now,
	})
	if err != nil {
		log.Printf("[LEDGER] failed to encode submission for %s: %v", identity, err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		log.Printf("[LEDGER] failed to build request for %s: %v", identity, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		log.Printf("[LEDGER] submission failed for %s: %v", identity, err)
		d.recordEvent(identity, now, "", "", "failed")
		return
	}
	defer httputil.DrainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := httputil.ReadErrorBody(resp.Body)
		log.Printf("[LEDGER] ledger rejected submission for %s: status %d: %s",
			identity, resp.StatusCode, string(body))
		d.recordEvent(identity, now, "", "", fmt.Sprintf("rejected:%d", resp.StatusCode))
		return
	}

	var rcpt receipt
	if body, err := httputil.ReadResponseBody(resp.Body, httputil.MaxResponseSize); err == nil && len(body) > 0 {
		// A malformed receipt body still counts as accepted.
		_ = json.Unmarshal(body, &rcpt)
	}

	log.Printf("[LEDGER] recorded threat for %s: score=%.2f duration=%.1fm tx=%s",
		identity, score, durationMinutes, rcpt.TxHash)
	d.recordEvent(identity, now, rcpt.TxHash, rcpt.HashID, "accepted")
	d.attachReceipt(identity, rcpt)
}

// recordEvent appends a LedgerEvent to the store, best effort.
func (d *Dispatcher) recordEvent(identity string, ts time.Time, txHash, hashID, status string) {
	if d.records == nil {
		return
	}
	ev := &session.LedgerEvent{
		ID:        uuid.NewString(),
		Identity:  identity,
		Timestamp: ts,
		Tier:      3,
		TxHash:    txHash,
		HashID:    hashID,
		Status:    status,
	}
	if err := d.records.AppendLedgerEvent(context.Background(), ev); err != nil {
		log.Printf("[LEDGER] failed to record event for %s: %v", identity, err)
	}
}

// attachReceipt stamps the receipt onto the identity's session, best effort.
// The narrow store operation leaves the rest of the session alone; a full
// get-modify-put here could overwrite a request committing concurrently.
func (d *Dispatcher) attachReceipt(identity string, rcpt receipt) {
	if d.records == nil || (rcpt.TxHash == "" && rcpt.HashID == "") {
		return
	}
	if err := d.records.UpdateLedgerReceipt(context.Background(), identity, rcpt.TxHash, rcpt.HashID); err != nil {
		log.Printf("[LEDGER] failed to store receipt for %s: %v", identity, err)
	}
}

// DroppedCount returns the number of submissions dropped at capacity.
func (d *Dispatcher) DroppedCount() int64 {
	return d.sem.DroppedCount()
}

// Wait blocks until all in-flight submissions finish. For shutdown and tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
