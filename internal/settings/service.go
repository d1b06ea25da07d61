package settings

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sproutswap/sproutswap-backend/internal/fees"
	"github.com/sproutswap/sproutswap-backend/pkg/db/models"
	pkgerrors "github.com/sproutswap/sproutswap-backend/pkg/errors"
	"github.com/sproutswap/sproutswap-backend/pkg/logger"
	"github.com/sproutswap/sproutswap-backend/pkg/redis"
)

// Setting keys the negotiation engine reads.
const (
	KeyPlatformFeeFixed    = "platform_fee_fixed"
	KeyPayPalFeePercentage = "paypal_fee_percentage"
	KeyPayPalFeeFixed      = "paypal_fee_fixed"
	KeyOfferExpirationDays = "offer_expiration_days"
)

// Fallback fee values used when the settings store cannot be read.
const (
	DefaultPlatformFeeFixed    = "0.42"
	DefaultPayPalFeePercentage = "2.49"
	DefaultPayPalFeeFixed      = "0.49"
	DefaultOfferExpirationDays = 7
)

const snapshotCacheTTL = 60 * time.Second

// publicKeys are settings any authenticated client may read directly.
var publicKeys = map[string]bool{
	KeyPlatformFeeFixed:    true,
	KeyPayPalFeePercentage: true,
	KeyPayPalFeeFixed:      true,
	KeyOfferExpirationDays: true,
}

// Cache is the slice of the redis client the settings service uses.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CacheKey(parts ...string) string
}

// Service provides runtime configuration reads and admin writes.
type Service interface {
	FeeSnapshot(ctx context.Context) fees.Snapshot
	OfferExpirationDays(ctx context.Context) int
	GetPublic(ctx context.Context, key string) (*models.SystemSetting, error)
	List(ctx context.Context) ([]models.SystemSetting, error)
	Update(ctx context.Context, key, value string) (*models.SystemSetting, error)
}

// Params wires the settings service dependencies.
type Params struct {
	Repo   Repository
	Cache  Cache
	Logger *logger.Logger

	FallbackExpirationDays int
}

type service struct {
	repo  Repository
	cache Cache
	log   *logger.Logger

	fallbackExpirationDays int
}

// NewService validates dependencies and returns the settings service.
func NewService(params Params) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "settings repository required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	fallbackDays := params.FallbackExpirationDays
	if fallbackDays <= 0 {
		fallbackDays = DefaultOfferExpirationDays
	}
	return &service{
		repo:                   params.Repo,
		cache:                  params.Cache,
		log:                    params.Logger,
		fallbackExpirationDays: fallbackDays,
	}, nil
}

func defaultSnapshot() fees.Snapshot {
	return fees.Snapshot{
		PlatformFeeFixed: decimal.RequireFromString(DefaultPlatformFeeFixed),
		PayPalFeePercent: decimal.RequireFromString(DefaultPayPalFeePercentage),
		PayPalFeeFixed:   decimal.RequireFromString(DefaultPayPalFeeFixed),
	}
}

// FeeSnapshot returns the fee configuration pinned for one settlement.
// Store failures never block a sale: unreadable configuration falls back to
// the shipped defaults with a warning.
func (s *service) FeeSnapshot(ctx context.Context) fees.Snapshot {
	if cached := s.cachedSnapshot(ctx); cached != nil {
		return *cached
	}

	values, err := s.repo.GetMany(ctx, []string{KeyPlatformFeeFixed, KeyPayPalFeePercentage, KeyPayPalFeeFixed})
	if err != nil {
		s.log.Warn(s.log.WithField(ctx, "error", err.Error()), "fee settings unavailable, using defaults")
		return defaultSnapshot()
	}

	snapshot := defaultSnapshot()
	snapshot.PlatformFeeFixed = s.decimalValue(ctx, values, KeyPlatformFeeFixed, snapshot.PlatformFeeFixed)
	snapshot.PayPalFeePercent = s.decimalValue(ctx, values, KeyPayPalFeePercentage, snapshot.PayPalFeePercent)
	snapshot.PayPalFeeFixed = s.decimalValue(ctx, values, KeyPayPalFeeFixed, snapshot.PayPalFeeFixed)

	s.storeSnapshot(ctx, snapshot)
	return snapshot
}

func (s *service) cachedSnapshot(ctx context.Context) *fees.Snapshot {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, s.cache.CacheKey("fee_snapshot"))
	if err != nil {
		if !redis.IsNil(err) {
			s.log.Warn(s.log.WithField(ctx, "error", err.Error()), "fee snapshot cache read failed")
		}
		return nil
	}
	var snapshot fees.Snapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil
	}
	return &snapshot
}

func (s *service) storeSnapshot(ctx context.Context, snapshot fees.Snapshot) {
	if s.cache == nil {
		return
	}
	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cache.CacheKey("fee_snapshot"), string(encoded), snapshotCacheTTL); err != nil {
		s.log.Warn(s.log.WithField(ctx, "error", err.Error()), "fee snapshot cache write failed")
	}
}

func (s *service) decimalValue(ctx context.Context, values map[string]string, key string, fallback decimal.Decimal) decimal.Decimal {
	raw, ok := values[key]
	if !ok {
		return fallback
	}
	parsed, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || parsed.IsNegative() {
		s.log.Warn(s.log.WithField(ctx, "setting_key", key), "ignoring malformed fee setting")
		return fallback
	}
	return parsed
}

// OfferExpirationDays returns how long new offers stay open.
func (s *service) OfferExpirationDays(ctx context.Context) int {
	setting, err := s.repo.Get(ctx, KeyOfferExpirationDays)
	if err != nil {
		s.log.Warn(s.log.WithField(ctx, "error", err.Error()), "offer expiration setting unavailable, using fallback")
		return s.fallbackExpirationDays
	}
	if setting == nil {
		return s.fallbackExpirationDays
	}
	days, err := strconv.Atoi(strings.TrimSpace(setting.Value))
	if err != nil || days <= 0 {
		s.log.Warn(s.log.WithField(ctx, "setting_key", KeyOfferExpirationDays), "ignoring malformed expiration setting")
		return s.fallbackExpirationDays
	}
	return days
}

// GetPublic returns a client-readable setting.
func (s *service) GetPublic(ctx context.Context, key string) (*models.SystemSetting, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "setting key required")
	}
	if !publicKeys[key] {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "setting not found")
	}
	setting, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "get setting")
	}
	if setting == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "setting not found")
	}
	return setting, nil
}

// List returns all settings for admin review.
func (s *service) List(ctx context.Context) ([]models.SystemSetting, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list settings")
	}
	return rows, nil
}

// Update validates and writes an admin settings change, dropping any cached
// fee snapshot so the new values pin future settlements.
func (s *service) Update(ctx context.Context, key, value string) (*models.SystemSetting, error) {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "setting key required")
	}
	if value == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "setting value required")
	}
	if err := validateSettingValue(key, value); err != nil {
		return nil, err
	}

	setting := &models.SystemSetting{Key: key, Value: value}
	if err := s.repo.Upsert(ctx, setting); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update setting")
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, s.cache.CacheKey("fee_snapshot")); err != nil {
			s.log.Warn(s.log.WithField(ctx, "error", err.Error()), "fee snapshot cache invalidation failed")
		}
	}
	return setting, nil
}

func validateSettingValue(key, value string) error {
	switch key {
	case KeyPlatformFeeFixed, KeyPayPalFeePercentage, KeyPayPalFeeFixed:
		parsed, err := decimal.NewFromString(value)
		if err != nil || parsed.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "fee settings must be non-negative numbers")
		}
	case KeyOfferExpirationDays:
		days, err := strconv.Atoi(value)
		if err != nil || days <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "offer expiration must be a positive whole number of days")
		}
	}
	return nil
}
