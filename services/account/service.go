package account

import (
	"context"
	"time"

	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/repository"
	"smallbiznis-rewards/pkg/validation"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrAccountNotFound = errutil.NotFound("account not found", nil, errutil.WithReason("ACCOUNT_NOT_FOUND"))

type Service struct {
	db       *gorm.DB
	accounts repository.Repository[Account]
	now      func() time.Time
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		accounts: repository.ProvideStore[Account](p.DB),
		now:      time.Now,
	}
}

func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	acc, err := s.accounts.FindOne(ctx, &Account{ID: id})
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}

// IsLinked reports whether credits can be delivered to the account.
// Accounts the directory has never seen are not linked.
func (s *Service) IsLinked(ctx context.Context, id string) (bool, error) {
	acc, err := s.accounts.FindOne(ctx, &Account{ID: id})
	if err != nil {
		zap.L().Error("failed to load account", zap.String("account_id", id), zap.Error(err))
		return false, err
	}
	return acc.Linked(), nil
}

// Link attaches an external account, creating the directory entry when needed.
func (s *Service) Link(ctx context.Context, id string, req LinkRequest) (*Account, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	external := req.ExternalAccountID
	acc := &Account{
		ID:                id,
		ExternalAccountID: &external,
		LinkedAt:          &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"external_account_id", "linked_at", "updated_at"}),
	}).Create(acc).Error
	if err != nil {
		zap.L().Error("failed to link account", zap.String("account_id", id), zap.Error(err))
		return nil, err
	}

	zap.L().Info("account linked", zap.String("account_id", id))
	return s.Get(ctx, id)
}

func (s *Service) Unlink(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&Account{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"external_account_id": nil,
			"linked_at":           nil,
			"updated_at":          s.now().UTC(),
		})
	if res.Error != nil {
		zap.L().Error("failed to unlink account", zap.String("account_id", id), zap.Error(res.Error))
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}

	zap.L().Info("account unlinked", zap.String("account_id", id))
	return nil
}
