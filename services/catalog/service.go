package catalog

import (
	"context"
	"errors"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/db/option"
	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/repository"
	"smallbiznis-rewards/pkg/validation"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	ReasonSettingNotFound   = "SETTING_NOT_FOUND"
	ReasonSettingReferenced = "SETTING_REFERENCED"
	ReasonCodeTaken         = "SETTING_CODE_TAKEN"
)

var (
	ErrSettingNotFound   = errutil.NotFound("award setting not found", nil, errutil.WithReason(ReasonSettingNotFound))
	ErrSettingReferenced = errutil.Conflict("award setting is referenced by issued awards", nil, errutil.WithReason(ReasonSettingReferenced))
	ErrCodeTaken         = errutil.Conflict("award setting code already exists", nil, errutil.WithReason(ReasonCodeTaken))
)

// ReferenceCounter reports how many awards were issued from a setting.
type ReferenceCounter interface {
	CountBySetting(ctx context.Context, settingID string) (int64, error)
	WithTrx(tx *gorm.DB) ReferenceCounter
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	settings repository.Repository[AwardSetting]
	refs     ReferenceCounter
	cache    Cache
	group    singleflight.Group
}

type ServiceParams struct {
	fx.In
	DB         *gorm.DB
	Node       *snowflake.Node
	References ReferenceCounter
	Config     *config.Config `optional:"true"`
	Redis      *redis.Client  `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	var cache Cache = noopCache{}
	if p.Redis != nil && p.Config != nil && p.Config.Rewards.CatalogCacheTTL > 0 {
		cache = NewRedisCache(p.Redis, p.Config.Rewards.CatalogCacheTTL)
	}

	return &Service{
		db:       p.DB,
		node:     p.Node,
		settings: repository.ProvideStore[AwardSetting](p.DB),
		refs:     p.References,
		cache:    cache,
	}
}

func (s *Service) Create(ctx context.Context, req CreateSettingRequest) (*AwardSetting, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if err := ValidateCondition(req.Condition); err != nil {
		return nil, conditionError(err)
	}

	code := req.Code
	if code == "" {
		code = req.Name
	}
	code = slug.Make(code)

	exist, err := s.settings.FindOne(ctx, &AwardSetting{Code: code})
	if err != nil {
		zap.L().Error("failed to query award setting by code", zap.String("code", code), zap.Error(err))
		return nil, err
	}
	if exist != nil {
		return nil, ErrCodeTaken
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	setting := &AwardSetting{
		ID:                s.node.Generate().String(),
		Code:              code,
		Name:              req.Name,
		Description:       req.Description,
		LoginDaysRequired: req.LoginDaysRequired,
		TokenAmount:       *req.TokenAmount,
		Active:            active,
		ExpiresAfterDays:  req.ExpiresAfterDays,
		Condition:         req.Condition,
	}
	if err := s.settings.Create(ctx, setting); err != nil {
		zap.L().Error("failed to create award setting", zap.String("code", code), zap.Error(err))
		return nil, err
	}

	s.cache.Invalidate(ctx)
	zap.L().Info("award setting created",
		zap.String("setting_id", setting.ID),
		zap.String("code", setting.Code),
		zap.Int("login_days_required", setting.LoginDaysRequired),
		zap.Int64("token_amount", setting.TokenAmount),
	)
	return setting, nil
}

func (s *Service) Get(ctx context.Context, id string) (*AwardSetting, error) {
	setting, err := s.settings.FindOne(ctx, &AwardSetting{ID: id})
	if err != nil {
		return nil, err
	}
	if setting == nil {
		return nil, ErrSettingNotFound
	}
	return setting, nil
}

func (s *Service) List(ctx context.Context, params ListParams) ([]*AwardSetting, error) {
	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "login_days_required",
			OrderBy: "asc",
			Allow:   map[string]bool{"login_days_required": true},
		}),
	}
	if params.Active != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "active", Operator: option.EQ, Value: *params.Active}))
	}
	return s.settings.Find(ctx, nil, opts...)
}

// Update applies the non-nil fields of req. The rule itself (days and amount) is frozen once
// an award references the setting; name, description, activity, expiry and condition stay editable.
func (s *Service) Update(ctx context.Context, id string, req UpdateSettingRequest) (*AwardSetting, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	ruleChanged := false

	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if req.ExpiresAfterDays != nil {
		updates["expires_after_days"] = *req.ExpiresAfterDays
	}
	if req.Condition != nil {
		if err := ValidateCondition(*req.Condition); err != nil {
			return nil, conditionError(err)
		}
		updates["condition_expr"] = *req.Condition
	}
	if req.LoginDaysRequired != nil && *req.LoginDaysRequired != current.LoginDaysRequired {
		updates["login_days_required"] = *req.LoginDaysRequired
		ruleChanged = true
	}
	if req.TokenAmount != nil && *req.TokenAmount != current.TokenAmount {
		updates["token_amount"] = *req.TokenAmount
		ruleChanged = true
	}

	if len(updates) == 0 {
		return current, nil
	}

	// The setting row stays locked until commit so a login cannot issue from the old rule
	// between the reference count and the write.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.settings.WithTrx(tx).FindOne(ctx, &AwardSetting{ID: id}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if locked == nil {
			return ErrSettingNotFound
		}
		if ruleChanged {
			if err := s.ensureUnreferenced(ctx, tx, id); err != nil {
				return err
			}
		}
		return s.settings.WithTrx(tx).Update(ctx, id, updates)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettingNotFound
		}
		if !errors.Is(err, ErrSettingNotFound) && !errors.Is(err, ErrSettingReferenced) {
			zap.L().Error("failed to update award setting", zap.String("setting_id", id), zap.Error(err))
		}
		return nil, err
	}

	s.cache.Invalidate(ctx)
	return s.Get(ctx, id)
}

func (s *Service) Deactivate(ctx context.Context, id string) (*AwardSetting, error) {
	inactive := false
	return s.Update(ctx, id, UpdateSettingRequest{Active: &inactive})
}

// Delete removes a setting that no award references; referenced settings must be deactivated instead.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.settings.WithTrx(tx).FindOne(ctx, &AwardSetting{ID: id}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if locked == nil {
			return ErrSettingNotFound
		}
		if err := s.ensureUnreferenced(ctx, tx, id); err != nil {
			return err
		}
		return tx.Delete(&AwardSetting{}, "id = ?", id).Error
	})
	if err != nil {
		if !errors.Is(err, ErrSettingNotFound) && !errors.Is(err, ErrSettingReferenced) {
			zap.L().Error("failed to delete award setting", zap.String("setting_id", id), zap.Error(err))
		}
		return err
	}

	s.cache.Invalidate(ctx)
	return nil
}

// ActiveSettings returns the active catalog, served from cache when possible.
func (s *Service) ActiveSettings(ctx context.Context) ([]*AwardSetting, error) {
	if settings, ok := s.cache.Get(ctx); ok {
		return settings, nil
	}

	v, err, _ := s.group.Do("active", func() (any, error) {
		active := true
		settings, err := s.List(ctx, ListParams{Active: &active})
		if err != nil {
			return nil, err
		}
		s.cache.Set(ctx, settings)
		return settings, nil
	})
	if err != nil {
		zap.L().Error("failed to load active award settings", zap.Error(err))
		return nil, err
	}
	return v.([]*AwardSetting), nil
}

// LockForIssuance re-reads the given settings inside tx under a shared lock, so an admin
// change to them waits for the issuing transaction and vice versa.
func (s *Service) LockForIssuance(ctx context.Context, tx *gorm.DB, ids []string) ([]*AwardSetting, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	values := make([]any, 0, len(ids))
	for _, id := range ids {
		values = append(values, id)
	}
	return s.settings.WithTrx(tx).Find(ctx, nil,
		option.ApplyOperator(option.Condition{Field: "id", Operator: option.IN, Value: values}),
		option.WithLockingShare(),
	)
}

func (s *Service) ensureUnreferenced(ctx context.Context, tx *gorm.DB, id string) error {
	count, err := s.refs.WithTrx(tx).CountBySetting(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrSettingReferenced
	}
	return nil
}

func conditionError(err error) error {
	return errutil.ValidationFailed("invalid request", err, errutil.WithDetails(errutil.Detail{
		Field:   "condition",
		Message: err.Error(),
	}))
}
