package paypalwebhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sproutswap/sproutswap-backend/pkg/db/models"
	"github.com/sproutswap/sproutswap-backend/pkg/enums"
	pkgerrors "github.com/sproutswap/sproutswap-backend/pkg/errors"
	"github.com/sproutswap/sproutswap-backend/pkg/logger"
)

type fakeFinalizer struct {
	calls   int
	orderID string
	capture string
	err     error
}

func (f *fakeFinalizer) Finalize(ctx context.Context, providerOrderID, captureID string) (*models.Transaction, error) {
	f.calls++
	f.orderID = providerOrderID
	f.capture = captureID
	if f.err != nil {
		return nil, f.err
	}
	return &models.Transaction{ID: uuid.New(), Status: enums.TransactionStatusCompleted}, nil
}

func newWebhookService(t *testing.T, finalizer *fakeFinalizer) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Settlement: finalizer,
		Logger:     logger.New(logger.Options{ServiceName: "webhook-test"}),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return svc
}

func captureEvent(eventType, orderID, captureID string) *Event {
	resource, _ := json.Marshal(map[string]any{
		"id": captureID,
		"supplementary_data": map[string]any{
			"related_ids": map[string]any{"order_id": orderID},
		},
	})
	return &Event{ID: "WH-" + uuid.NewString(), EventType: eventType, Resource: resource}
}

func TestHandleEventFinalizesCapture(t *testing.T) {
	finalizer := &fakeFinalizer{}
	svc := newWebhookService(t, finalizer)

	err := svc.HandleEvent(context.Background(), captureEvent(EventTypeCaptureCompleted, "PP-1", "CAP-1"))
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if finalizer.calls != 1 || finalizer.orderID != "PP-1" || finalizer.capture != "CAP-1" {
		t.Fatalf("unexpected finalize call %+v", finalizer)
	}
}

func TestHandleEventIgnoresOtherTypes(t *testing.T) {
	finalizer := &fakeFinalizer{}
	svc := newWebhookService(t, finalizer)

	err := svc.HandleEvent(context.Background(), captureEvent("CHECKOUT.ORDER.APPROVED", "PP-1", "CAP-1"))
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if finalizer.calls != 0 {
		t.Fatalf("unconsumed event types must not settle anything")
	}
}

func TestHandleEventMissingOrderID(t *testing.T) {
	finalizer := &fakeFinalizer{}
	svc := newWebhookService(t, finalizer)

	err := svc.HandleEvent(context.Background(), captureEvent(EventTypeCaptureCompleted, "", "CAP-1"))
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHandleEventSwallowsAlreadyFinalized(t *testing.T) {
	finalizer := &fakeFinalizer{err: pkgerrors.New(pkgerrors.CodeAlreadyFinalized, "already done")}
	svc := newWebhookService(t, finalizer)

	err := svc.HandleEvent(context.Background(), captureEvent(EventTypeCaptureCompleted, "PP-1", "CAP-1"))
	if err != nil {
		t.Fatalf("replays of a settled capture must succeed, got %v", err)
	}
}

func TestHandleEventPropagatesUnknownOrder(t *testing.T) {
	finalizer := &fakeFinalizer{err: pkgerrors.New(pkgerrors.CodeNotFound, "no transaction")}
	svc := newWebhookService(t, finalizer)

	err := svc.HandleEvent(context.Background(), captureEvent(EventTypeCaptureCompleted, "PP-unknown", "CAP-1"))
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type fakeIdempotencyStore struct {
	seen map[string]bool
	err  error
}

func (f *fakeIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeIdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	if f.seen[key] {
		return "1", nil
	}
	return "", errors.New("redis: nil")
}

func (f *fakeIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.seen, key)
	}
	return nil
}

func (f *fakeIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "ss:idempotency:" + scope + ":" + id
}

func TestIdempotencyGuard(t *testing.T) {
	store := &fakeIdempotencyStore{}
	guard, err := NewIdempotencyGuard(store, time.Hour, "paypal_webhook")
	if err != nil {
		t.Fatalf("construct guard: %v", err)
	}
	ctx := context.Background()

	dup, err := guard.CheckAndMark(ctx, "WH-1")
	if err != nil || dup {
		t.Fatalf("first delivery must not be a duplicate, got dup=%v err=%v", dup, err)
	}

	dup, err = guard.CheckAndMark(ctx, "WH-1")
	if err != nil || !dup {
		t.Fatalf("second delivery must be flagged, got dup=%v err=%v", dup, err)
	}

	if err := guard.Delete(ctx, "WH-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	dup, err = guard.CheckAndMark(ctx, "WH-1")
	if err != nil || dup {
		t.Fatalf("deleted event id must be retryable, got dup=%v err=%v", dup, err)
	}
}

func TestIdempotencyGuardStoreFailure(t *testing.T) {
	guard, err := NewIdempotencyGuard(&fakeIdempotencyStore{err: errors.New("redis down")}, time.Hour, "paypal_webhook")
	if err != nil {
		t.Fatalf("construct guard: %v", err)
	}
	if _, err := guard.CheckAndMark(context.Background(), "WH-1"); err == nil {
		t.Fatalf("store failures must surface")
	}
}
