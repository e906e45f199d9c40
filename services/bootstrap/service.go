package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/services/account"
	"smallbiznis-rewards/services/award"
	"smallbiznis-rewards/services/catalog"
	"smallbiznis-rewards/services/ledger"
	"smallbiznis-rewards/services/streak"
	"smallbiznis-rewards/services/task"

	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Models lists every table the rewards service owns.
func Models() []any {
	return []any{
		&catalog.AwardSetting{},
		&streak.LoginStreak{},
		&award.Award{},
		&account.Account{},
		&ledger.LedgerEntry{},
		&ledger.Balance{},
		&task.Job{},
	}
}

type Service struct {
	db      *gorm.DB
	config  *config.Config
	catalog *catalog.Service
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Config  *config.Config
	Catalog *catalog.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		config:  p.Config,
		catalog: p.Catalog,
	}
}

func (s *Service) Migrate() error {
	if !s.config.Database.AutoMigrate {
		zap.L().Info("[bootstrap] auto migrate disabled")
		return nil
	}

	if err := s.db.AutoMigrate(Models()...); err != nil {
		zap.L().Error("[bootstrap] auto migrate failed", zap.Error(err))
		return fmt.Errorf("auto migrate: %w", err)
	}
	zap.L().Info("[bootstrap] schema migrated")
	return nil
}

// SeedDefaultSettings creates the configured default award settings whose code does not exist yet.
func (s *Service) SeedDefaultSettings(ctx context.Context) error {
	if len(s.config.Rewards.DefaultSettings) == 0 {
		return nil
	}

	existing, err := s.catalog.List(ctx, catalog.ListParams{})
	if err != nil {
		return err
	}

	var errs []error
	for _, def := range s.config.Rewards.DefaultSettings {
		code := slug.Make(def.Name)
		if hasCode(existing, code) {
			zap.L().Info("[bootstrap] default award setting exists", zap.String("code", code))
			continue
		}

		amount := def.TokenAmount
		_, err := s.catalog.Create(ctx, catalog.CreateSettingRequest{
			Code:              code,
			Name:              def.Name,
			Description:       def.Description,
			LoginDaysRequired: def.LoginDaysRequired,
			TokenAmount:       &amount,
			ExpiresAfterDays:  def.ExpiresAfterDays,
		})
		if errors.Is(err, catalog.ErrCodeTaken) {
			continue
		}
		if err != nil {
			zap.L().Error("[bootstrap] failed to seed award setting", zap.String("code", code), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		zap.L().Info("[bootstrap] default award setting created", zap.String("code", code))
	}
	return errors.Join(errs...)
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.Migrate(); err != nil {
		return err
	}
	return s.SeedDefaultSettings(ctx)
}

func hasCode(settings []*catalog.AwardSetting, code string) bool {
	for _, st := range settings {
		if st.Code == code {
			return true
		}
	}
	return false
}
