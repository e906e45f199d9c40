package streak

import (
	"context"
	"errors"
	"time"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/db/option"
	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/repository"
	"smallbiznis-rewards/services/award"
	"smallbiznis-rewards/services/catalog"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxFirstLoginAttempts = 3

var (
	ErrStreakNotFound = errutil.NotFound("no logins recorded for account", nil, errutil.WithReason("STREAK_NOT_FOUND"))

	errFirstLoginRace = errors.New("streak row created concurrently")
)

// Catalog is the read side of the award catalog that login processing needs.
type Catalog interface {
	ActiveSettings(ctx context.Context) ([]*catalog.AwardSetting, error)
	LockForIssuance(ctx context.Context, tx *gorm.DB, ids []string) ([]*catalog.AwardSetting, error)
}

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	streaks repository.Repository[LoginStreak]
	awards  *award.Store
	catalog Catalog
	loc     *time.Location
	now     func() time.Time
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Awards  *award.Store
	Catalog Catalog
	Config  *config.Config `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		streaks: repository.ProvideStore[LoginStreak](p.DB),
		awards:  p.Awards,
		catalog: p.Catalog,
		loc:     p.Config.Location(),
		now:     time.Now,
	}
}

// RecordLoginResult carries the streak after the login and the awards it issued.
type RecordLoginResult struct {
	Streak    *LoginStreak   `json:"streak"`
	Advanced  bool           `json:"advanced"`
	NewAwards []*award.Award `json:"new_awards"`
}

// Today is the current calendar day in the configured rewards timezone.
func (s *Service) Today() time.Time {
	return CalendarDate(s.now().In(s.loc))
}

// RecordLogin folds a login on eventDate's calendar day into the account's streak and
// issues every award the new streak earns. The streak update and the issuance commit
// together under a row lock on the account's streak.
func (s *Service) RecordLogin(ctx context.Context, accountID string, eventDate time.Time) (*RecordLoginResult, error) {
	if accountID == "" || len(accountID) > 64 {
		return nil, errutil.ValidationFailed("invalid account id", nil, errutil.WithDetails(errutil.Detail{
			Field:   "account_id",
			Message: "must be between 1 and 64 characters",
		}))
	}

	day := CalendarDate(eventDate)
	if day.After(s.Today().AddDate(0, 0, 1)) {
		return nil, errutil.ValidationFailed("event date is in the future", nil, errutil.WithDetails(errutil.Detail{
			Field:   "event_date",
			Message: "must not be later than tomorrow",
		}))
	}

	settings, err := s.catalog.ActiveSettings(ctx)
	if err != nil {
		return nil, err
	}

	var result *RecordLoginResult
	for attempt := 1; attempt <= maxFirstLoginAttempts; attempt++ {
		result, err = s.recordLogin(ctx, accountID, day, settings)
		if !errors.Is(err, errFirstLoginRace) {
			break
		}
		zap.L().Debug("first login raced, retrying", zap.String("account_id", accountID), zap.Int("attempt", attempt))
	}
	if err != nil {
		zap.L().Error("failed to record login", zap.String("account_id", accountID), zap.Error(err))
		return nil, err
	}

	for _, a := range result.NewAwards {
		award.RecordIssued(a)
	}

	if result.Advanced {
		zap.L().Info("login recorded",
			zap.String("account_id", accountID),
			zap.String("event_date", day.Format(time.DateOnly)),
			zap.Int("current_streak", result.Streak.CurrentStreak),
			zap.Int("awards_issued", len(result.NewAwards)),
		)
	}
	return result, nil
}

func (s *Service) recordLogin(ctx context.Context, accountID string, day time.Time, settings []*catalog.AwardSetting) (*RecordLoginResult, error) {
	result := &RecordLoginResult{NewAwards: []*award.Award{}}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		streaks := s.streaks.WithTrx(tx)

		prior, err := streaks.FindOne(ctx, &LoginStreak{AccountID: accountID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}

		next, advanced := Advance(prior, accountID, day)
		result.Streak = &next
		result.Advanced = advanced
		if !advanced {
			return nil
		}

		now := s.now().UTC()
		next.UpdatedAt = now
		if prior == nil {
			next.CreatedAt = now
			res := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&next)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errFirstLoginRace
			}
		} else {
			err := tx.WithContext(ctx).Model(&LoginStreak{}).
				Where("account_id = ?", accountID).
				Updates(map[string]any{
					"current_streak":   next.CurrentStreak,
					"longest_streak":   next.LongestStreak,
					"total_login_days": next.TotalLoginDays,
					"last_login_date":  next.LastLoginDate,
					"updated_at":       now,
				}).Error
			if err != nil {
				return err
			}
		}

		awards := s.awards.WithTrx(tx)
		existing, err := awards.ListForIssuance(ctx, accountID, day.Format(time.DateOnly))
		if err != nil {
			return err
		}

		earned := award.Evaluate(award.EvaluateInput{
			AccountID: accountID,
			Streak: award.Streak{
				Current:        next.CurrentStreak,
				Longest:        next.LongestStreak,
				TotalLoginDays: next.TotalLoginDays,
			},
			EventDate: day,
			Catalog:   settings,
			Existing:  existing,
			Now:       now,
		}, func() string { return s.node.Generate().String() })

		earned, err = s.confirmSettings(ctx, tx, earned, settings)
		if err != nil {
			return err
		}

		for _, a := range earned {
			inserted, _, err := awards.InsertIfAbsent(ctx, a)
			if err != nil {
				return err
			}
			if inserted {
				result.NewAwards = append(result.NewAwards, a)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// confirmSettings locks the settings behind earned and drops awards whose setting was
// removed, deactivated or re-ruled since the catalog snapshot was read.
func (s *Service) confirmSettings(ctx context.Context, tx *gorm.DB, earned []*award.Award, snapshot []*catalog.AwardSetting) ([]*award.Award, error) {
	if len(earned) == 0 {
		return earned, nil
	}

	ids := make([]string, 0, len(earned))
	seen := map[string]bool{}
	for _, a := range earned {
		if !seen[a.AwardSettingID] {
			seen[a.AwardSettingID] = true
			ids = append(ids, a.AwardSettingID)
		}
	}

	locked, err := s.catalog.LockForIssuance(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	current := make(map[string]*catalog.AwardSetting, len(locked))
	for _, setting := range locked {
		current[setting.ID] = setting
	}
	cached := make(map[string]*catalog.AwardSetting, len(snapshot))
	for _, setting := range snapshot {
		cached[setting.ID] = setting
	}

	out := earned[:0]
	for _, a := range earned {
		fresh, was := current[a.AwardSettingID], cached[a.AwardSettingID]
		if fresh == nil || was == nil || !fresh.Active ||
			fresh.LoginDaysRequired != was.LoginDaysRequired ||
			fresh.TokenAmount != was.TokenAmount ||
			fresh.Condition != was.Condition {
			zap.L().Warn("award setting changed during login, award not issued",
				zap.String("account_id", a.AccountID),
				zap.String("setting_id", a.AwardSettingID),
			)
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Service) GetStreak(ctx context.Context, accountID string) (*LoginStreak, error) {
	streak, err := s.streaks.FindOne(ctx, &LoginStreak{AccountID: accountID})
	if err != nil {
		return nil, err
	}
	if streak == nil {
		return nil, ErrStreakNotFound
	}
	return streak, nil
}
