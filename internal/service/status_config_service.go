package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-lms-api/internal/models"
	appErrors "github.com/noah-isme/campus-lms-api/pkg/errors"
)

const statusConfigCacheKey = "settings:" + models.SettingKeyStatusConfig

type settingRepository interface {
	Get(ctx context.Context, key string) (*models.Setting, error)
	Upsert(ctx context.Context, setting *models.Setting) error
}

type settingCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// UpdateStatusConfigRequest carries a replacement status vocabulary.
type UpdateStatusConfigRequest struct {
	Allowed  []string `json:"allowed" validate:"required,min=1,dive,required"`
	Approved []string `json:"approved"`
}

// StatusConfigService loads and updates the tenant's enrollment status
// vocabulary. Loads are cached; the safe default vocabulary is returned when
// no setting exists.
type StatusConfigService struct {
	repo     settingRepository
	cache    settingCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewStatusConfigService constructs StatusConfigService.
func NewStatusConfigService(repo settingRepository, cache settingCache, cacheTTL time.Duration, logger *zap.Logger) *StatusConfigService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusConfigService{repo: repo, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// Load returns the current status vocabulary, normalized.
func (s *StatusConfigService) Load(ctx context.Context) (*models.StatusConfig, error) {
	if s.cache != nil {
		var cached models.StatusConfig
		if err := s.cache.Get(ctx, statusConfigCacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	setting, err := s.repo.Get(ctx, models.SettingKeyStatusConfig)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DefaultStatusConfig(), nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load status config")
	}

	var cfg models.StatusConfig
	if err := json.Unmarshal([]byte(setting.Value), &cfg); err != nil {
		s.logger.Warn("malformed status config setting, using default", zap.Error(err))
		return models.DefaultStatusConfig(), nil
	}
	cfg.Normalize()
	if len(cfg.Allowed) == 0 {
		return models.DefaultStatusConfig(), nil
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, statusConfigCacheKey, &cfg, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache status config", zap.Error(err))
		}
	}
	return &cfg, nil
}

// Update replaces the vocabulary. Approved entries must be members of the
// allowed set; an empty approved set disables capacity accounting entirely.
func (s *StatusConfigService) Update(ctx context.Context, req UpdateStatusConfigRequest, updatedBy string) (*models.StatusConfig, error) {
	cfg := &models.StatusConfig{Allowed: req.Allowed, Approved: req.Approved}

	allowed := make(map[string]struct{}, len(req.Allowed))
	for _, a := range req.Allowed {
		n := models.NormalizeStatus(a)
		if n == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "allowed statuses must be non-empty strings")
		}
		allowed[n] = struct{}{}
	}
	for _, a := range req.Approved {
		if _, ok := allowed[models.NormalizeStatus(a)]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "approved statuses must be a subset of allowed statuses")
		}
	}
	cfg.Normalize()
	if len(cfg.Allowed) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "allowed statuses must not be empty")
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode status config")
	}

	setting := &models.Setting{Key: models.SettingKeyStatusConfig, Value: string(payload)}
	if updatedBy != "" {
		setting.UpdatedBy = &updatedBy
	}
	if err := s.repo.Upsert(ctx, setting); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist status config")
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, statusConfigCacheKey); err != nil {
			s.logger.Warn("failed to invalidate status config cache", zap.Error(err))
		}
	}
	return cfg, nil
}
