package offline

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"time"

	"fitness-gateway-api/internal/models"

	"gorm.io/gorm"
)

// Queue is the durable store of mutations that failed while offline and are
// waiting to be replayed. Items stay queued across repeated replay failures;
// there is no dead-letter state.
type Queue struct {
	db *gorm.DB
}

// NewQueue wraps the database handle.
func NewQueue(db *gorm.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue stores a failed mutation together with the caller's credential so
// the replay can authenticate as the original caller. Returns the local id
// handed back to the client.
func (q *Queue) Enqueue(method, endpoint string, body []byte, token string) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	item := models.PendingMutation{
		LocalID:   "pm-" + hex.EncodeToString(buf),
		Method:    method,
		Endpoint:  endpoint,
		Body:      body,
		Token:     token,
		CreatedAt: time.Now(),
	}
	if err := q.db.Create(&item).Error; err != nil {
		return "", err
	}
	return item.LocalID, nil
}

// Pending returns queued mutations in enqueue order.
func (q *Queue) Pending() ([]models.PendingMutation, error) {
	var items []models.PendingMutation
	err := q.db.Order("id asc").Find(&items).Error
	return items, err
}

// Remove deletes one replayed item.
func (q *Queue) Remove(id uint) error {
	return q.db.Delete(&models.PendingMutation{}, id).Error
}

// markAttempt bumps the attempt counter on an item left queued.
func (q *Queue) markAttempt(id uint) error {
	return q.db.Model(&models.PendingMutation{}).Where("id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
}

// ReplayResult summarizes one drain of the queue.
type ReplayResult struct {
	Replayed int `json:"replayed"`
	Deferred int `json:"deferred"`
}

// Replayer drains the pending-mutation queue against the upstream.
type Replayer struct {
	queue    *Queue
	upstream string
	httpc    *http.Client
	events   EventSink
}

// NewReplayer builds a replayer for the queue.
func NewReplayer(queue *Queue, upstream string, events EventSink) *Replayer {
	return &Replayer{
		queue:    queue,
		upstream: upstream,
		httpc:    &http.Client{Timeout: 15 * time.Second},
		events:   events,
	}
}

// Replay drains the queue sequentially. A successful replay removes its
// item; a failure leaves the item queued for the next sync trigger and the
// drain continues with the next item rather than aborting the batch.
func (r *Replayer) Replay(ctx context.Context) (ReplayResult, error) {
	var result ReplayResult
	items, err := r.queue.Pending()
	if err != nil {
		return result, err
	}
	for _, item := range items {
		if err := r.replayOne(ctx, item); err != nil {
			log.Printf("offline: replay %s %s deferred: %v", item.Method, item.Endpoint, err)
			if err := r.queue.markAttempt(item.ID); err != nil {
				log.Printf("offline: mark attempt for %s failed: %v", item.LocalID, err)
			}
			result.Deferred++
			continue
		}
		if err := r.queue.Remove(item.ID); err != nil {
			log.Printf("offline: remove replayed item %s failed: %v", item.LocalID, err)
		}
		result.Replayed++
		r.publish("sync", "replayed "+item.Method+" "+item.Endpoint)
	}
	return result, nil
}

// RunPeriodic drains the queue on every tick until ctx is cancelled. This is
// the standing sync trigger; the flush endpoint remains available for an
// immediate drain in between ticks.
func (r *Replayer) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := r.Replay(ctx); err != nil {
				log.Printf("offline: periodic replay failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (r *Replayer) replayOne(ctx context.Context, item models.PendingMutation) error {
	req, err := http.NewRequestWithContext(ctx, item.Method, r.upstream+item.Endpoint, bytes.NewReader(item.Body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if item.Token != "" {
		req.Header.Set("Authorization", "Bearer "+item.Token)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		// left queued for the next trigger; no dead-letter state exists
		return &replayStatusError{status: resp.StatusCode}
	}
	return nil
}

type replayStatusError struct {
	status int
}

func (e *replayStatusError) Error() string {
	return http.StatusText(e.status)
}

func (r *Replayer) publish(kind, detail string) {
	if r.events != nil {
		r.events.Publish(kind, detail)
	}
}
