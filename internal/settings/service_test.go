package settings

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sproutswap/sproutswap-backend/pkg/db/models"
	pkgerrors "github.com/sproutswap/sproutswap-backend/pkg/errors"
	"github.com/sproutswap/sproutswap-backend/pkg/logger"
)

type fakeSettingsRepo struct {
	values  map[string]string
	getErr  error
	upserts []models.SystemSetting
}

func (f *fakeSettingsRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeSettingsRepo) Get(ctx context.Context, key string) (*models.SystemSetting, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	value, ok := f.values[key]
	if !ok {
		return nil, nil
	}
	return &models.SystemSetting{Key: key, Value: value}, nil
}

func (f *fakeSettingsRepo) GetMany(ctx context.Context, keys []string) (map[string]string, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	out := map[string]string{}
	for _, key := range keys {
		if value, ok := f.values[key]; ok {
			out[key] = value
		}
	}
	return out, nil
}

func (f *fakeSettingsRepo) List(ctx context.Context) ([]models.SystemSetting, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	var rows []models.SystemSetting
	for key, value := range f.values {
		rows = append(rows, models.SystemSetting{Key: key, Value: value})
	}
	return rows, nil
}

func (f *fakeSettingsRepo) Upsert(ctx context.Context, setting *models.SystemSetting) error {
	if f.values == nil {
		f.values = map[string]string{}
	}
	f.values[setting.Key] = setting.Value
	f.upserts = append(f.upserts, *setting)
	return nil
}

type fakeCache struct {
	data map[string]string
	dels []string
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, error) {
	value, ok := f.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return value, nil
}

func (f *fakeCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if f.data == nil {
		f.data = map[string]string{}
	}
	f.data[key] = value.(string)
	return nil
}

func (f *fakeCache) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
		f.dels = append(f.dels, key)
	}
	return nil
}

func (f *fakeCache) CacheKey(parts ...string) string {
	key := "ss:cache"
	for _, part := range parts {
		key += ":" + part
	}
	return key
}

func newTestService(t *testing.T, repo Repository, cache Cache) Service {
	t.Helper()
	svc, err := NewService(Params{
		Repo:   repo,
		Cache:  cache,
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func TestFeeSnapshotReadsStore(t *testing.T) {
	repo := &fakeSettingsRepo{values: map[string]string{
		KeyPlatformFeeFixed:    "0.50",
		KeyPayPalFeePercentage: "3.00",
		KeyPayPalFeeFixed:      "0.30",
	}}
	svc := newTestService(t, repo, &fakeCache{})

	snapshot := svc.FeeSnapshot(context.Background())
	if snapshot.PlatformFeeFixed.String() != "0.5" {
		t.Fatalf("unexpected platform fee %s", snapshot.PlatformFeeFixed)
	}
	if snapshot.PayPalFeePercent.String() != "3" {
		t.Fatalf("unexpected percent %s", snapshot.PayPalFeePercent)
	}
}

func TestFeeSnapshotFallsBackWhenStoreUnavailable(t *testing.T) {
	repo := &fakeSettingsRepo{getErr: errors.New("connection refused")}
	svc := newTestService(t, repo, nil)

	snapshot := svc.FeeSnapshot(context.Background())
	if snapshot.PlatformFeeFixed.String() != "0.42" {
		t.Fatalf("expected default platform fee, got %s", snapshot.PlatformFeeFixed)
	}
	if snapshot.PayPalFeePercent.String() != "2.49" {
		t.Fatalf("expected default percent, got %s", snapshot.PayPalFeePercent)
	}
	if snapshot.PayPalFeeFixed.String() != "0.49" {
		t.Fatalf("expected default fixed fee, got %s", snapshot.PayPalFeeFixed)
	}
}

func TestFeeSnapshotIgnoresMalformedValues(t *testing.T) {
	repo := &fakeSettingsRepo{values: map[string]string{
		KeyPlatformFeeFixed:    "not-a-number",
		KeyPayPalFeePercentage: "-1",
	}}
	svc := newTestService(t, repo, nil)

	snapshot := svc.FeeSnapshot(context.Background())
	if snapshot.PlatformFeeFixed.String() != "0.42" {
		t.Fatalf("expected default for malformed value, got %s", snapshot.PlatformFeeFixed)
	}
	if snapshot.PayPalFeePercent.String() != "2.49" {
		t.Fatalf("expected default for negative value, got %s", snapshot.PayPalFeePercent)
	}
}

func TestFeeSnapshotUsesCache(t *testing.T) {
	repo := &fakeSettingsRepo{values: map[string]string{KeyPlatformFeeFixed: "0.10"}}
	cache := &fakeCache{}
	svc := newTestService(t, repo, cache)

	first := svc.FeeSnapshot(context.Background())

	// a later store change is not visible until the cache entry expires
	repo.values[KeyPlatformFeeFixed] = "9.99"
	second := svc.FeeSnapshot(context.Background())

	if !first.PlatformFeeFixed.Equal(second.PlatformFeeFixed) {
		t.Fatalf("expected cached snapshot, got %s then %s", first.PlatformFeeFixed, second.PlatformFeeFixed)
	}
}

func TestOfferExpirationDays(t *testing.T) {
	repo := &fakeSettingsRepo{values: map[string]string{KeyOfferExpirationDays: "14"}}
	svc := newTestService(t, repo, nil)

	if got := svc.OfferExpirationDays(context.Background()); got != 14 {
		t.Fatalf("expected 14 days, got %d", got)
	}

	repo.values[KeyOfferExpirationDays] = "zero"
	if got := svc.OfferExpirationDays(context.Background()); got != DefaultOfferExpirationDays {
		t.Fatalf("expected fallback days, got %d", got)
	}
}

func TestGetPublicRejectsPrivateKeys(t *testing.T) {
	repo := &fakeSettingsRepo{values: map[string]string{"internal_flag": "x", KeyPlatformFeeFixed: "0.42"}}
	svc := newTestService(t, repo, nil)

	if _, err := svc.GetPublic(context.Background(), "internal_flag"); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for private key, got %v", err)
	}

	setting, err := svc.GetPublic(context.Background(), KeyPlatformFeeFixed)
	if err != nil {
		t.Fatalf("GetPublic failed: %v", err)
	}
	if setting.Value != "0.42" {
		t.Fatalf("unexpected value %q", setting.Value)
	}
}

func TestUpdateValidatesAndInvalidatesCache(t *testing.T) {
	repo := &fakeSettingsRepo{}
	cache := &fakeCache{data: map[string]string{"ss:cache:fee_snapshot": "{}"}}
	svc := newTestService(t, repo, cache)

	if _, err := svc.Update(context.Background(), KeyPayPalFeePercentage, "-5"); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Update(context.Background(), KeyOfferExpirationDays, "1.5"); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	setting, err := svc.Update(context.Background(), KeyPayPalFeePercentage, "3.10")
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if setting.Value != "3.10" {
		t.Fatalf("unexpected stored value %q", setting.Value)
	}
	if len(cache.dels) != 1 {
		t.Fatalf("expected cache invalidation, got %v", cache.dels)
	}
}
