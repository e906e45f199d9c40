package award

import (
	"context"
	"time"

	"smallbiznis-rewards/pkg/db/option"
	"smallbiznis-rewards/pkg/db/pagination"
	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/repository"

	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the award ledger. Uniqueness of issuance and the pending -> claimed
// transition are enforced by the database, not by read-then-write checks.
type Store struct {
	db     *gorm.DB
	awards repository.Repository[Award]
}

type StoreParams struct {
	fx.In
	DB *gorm.DB
}

func NewStore(p StoreParams) *Store {
	return &Store{
		db:     p.DB,
		awards: repository.ProvideStore[Award](p.DB),
	}
}

// WithTrx binds the store to an open transaction.
func (s *Store) WithTrx(tx *gorm.DB) *Store {
	if tx == nil {
		return s
	}
	return &Store{db: tx, awards: s.awards.WithTrx(tx)}
}

// InsertIfAbsent inserts a unless its issuance slot is taken, in which case the
// stored award is returned with inserted == false.
func (s *Store) InsertIfAbsent(ctx context.Context, a *Award) (bool, *Award, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(a)
	if res.Error != nil {
		return false, nil, res.Error
	}
	if res.RowsAffected > 0 {
		return true, a, nil
	}

	var existing Award
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND award_setting_id = ? AND issuance_day = ?", a.AccountID, a.AwardSettingID, a.IssuanceDay).
		Take(&existing).Error
	if err != nil {
		return false, nil, err
	}
	return false, &existing, nil
}

// Get returns nil, nil when the award does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Award, error) {
	if id == "" {
		return nil, nil
	}
	return s.awards.FindOne(ctx, &Award{ID: id})
}

// ListByAccount pages through an account's awards, newest first.
func (s *Store) ListByAccount(ctx context.Context, accountID string, params ListParams) ([]*Award, *pagination.PageInfo, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{SortBy: "id", OrderBy: "desc", Allow: map[string]bool{"id": true}}),
		option.WithLimit(limit + 1),
	}
	if params.Status != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "status", Operator: option.EQ, Value: params.Status}))
	}
	if params.Cursor != "" {
		cursor, err := pagination.DecodeCursor(params.Cursor)
		if err != nil || cursor.ID == "" {
			return nil, nil, errutil.BadRequest("invalid cursor", err)
		}
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "id", Operator: option.LT, Value: cursor.ID}))
	}

	awards, err := s.awards.Find(ctx, &Award{AccountID: accountID}, opts...)
	if err != nil {
		return nil, nil, err
	}

	return pagination.Page(awards, limit, func(a *Award) pagination.Cursor {
		return pagination.Cursor{ID: a.ID}
	})
}

// ListForIssuance returns the awards that occupy a slot a login on day could issue into:
// all milestone awards and the daily awards of that day.
func (s *Store) ListForIssuance(ctx context.Context, accountID, day string) ([]*Award, error) {
	var out []*Award
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND issuance_day IN ?", accountID, []string{"", day}).
		Find(&out).Error
	return out, err
}

// TransitionPendingToClaimed is the claim compare-and-swap. It succeeds for exactly one caller.
func (s *Store) TransitionPendingToClaimed(ctx context.Context, id, confirmationID string, claimedAt time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&Award{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]any{
			"status":                   StatusClaimed,
			"claimed_at":               claimedAt,
			"external_confirmation_id": confirmationID,
			"claim_dispatched_at":      nil,
			"updated_at":               claimedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Dispatch is one credit attempt's claim on the dispatch marker. At is the value this
// attempt wrote; Previous is the marker it replaced.
type Dispatch struct {
	At       time.Time
	Previous *time.Time
}

// MarkDispatched records that a credit call is about to leave for a pending award.
// It returns nil when the award is no longer pending. Every dispatch writes a distinct,
// increasing marker so a later revert only touches its own.
func (s *Store) MarkDispatched(ctx context.Context, id string, at time.Time) (*Dispatch, error) {
	var d *Dispatch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.awards.WithTrx(tx).FindOne(ctx, &Award{ID: id, Status: StatusPending}, option.WithLockingUpdate())
		if err != nil || current == nil {
			return err
		}

		at = at.UTC().Truncate(time.Millisecond)
		if current.ClaimDispatchedAt != nil && !at.After(*current.ClaimDispatchedAt) {
			at = current.ClaimDispatchedAt.UTC().Add(time.Millisecond)
		}

		err = tx.Model(&Award{}).
			Where("id = ? AND status = ?", id, StatusPending).
			Updates(map[string]any{"claim_dispatched_at": at, "updated_at": at}).Error
		if err != nil {
			return err
		}
		d = &Dispatch{At: at, Previous: current.ClaimDispatchedAt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// RevertDispatched undoes a dispatch that never reached the crediting service or was
// refused by it. The marker is restored only while it still holds d.At.
func (s *Store) RevertDispatched(ctx context.Context, id string, d *Dispatch) (bool, error) {
	var previous any
	if d.Previous != nil {
		previous = *d.Previous
	}
	res := s.db.WithContext(ctx).Model(&Award{}).
		Where("id = ? AND status = ? AND claim_dispatched_at = ?", id, StatusPending, d.At).
		Update("claim_dispatched_at", previous)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ClearDispatched drops the marker if it still holds at, making the award expirable again.
func (s *Store) ClearDispatched(ctx context.Context, id string, at time.Time) (bool, error) {
	return s.RevertDispatched(ctx, id, &Dispatch{At: at})
}

// ListDispatched returns pending awards whose credit call was dispatched at or before olderThan.
func (s *Store) ListDispatched(ctx context.Context, olderThan time.Time, limit int) ([]*Award, error) {
	return s.awards.Find(ctx, &Award{Status: StatusPending},
		option.ApplyOperator(option.Condition{Field: "claim_dispatched_at", Operator: option.IsNotNil}),
		option.ApplyOperator(option.Condition{Field: "claim_dispatched_at", Operator: option.LTE, Value: olderThan}),
		option.WithSortBy(option.QuerySortBy{SortBy: "claim_dispatched_at", OrderBy: "asc", Allow: map[string]bool{"claim_dispatched_at": true}}),
		option.WithLimit(limit),
	)
}

// ExpirePending moves up to limit overdue pending awards to expired. Awards with a
// dispatched claim are left for reconciliation.
func (s *Store) ExpirePending(ctx context.Context, now time.Time, limit int) (int64, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&Award{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ? AND claim_dispatched_at IS NULL", StatusPending, now).
		Order("expires_at").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, err
	}

	res := s.db.WithContext(ctx).Model(&Award{}).
		Where("id IN ? AND status = ? AND claim_dispatched_at IS NULL", ids, StatusPending).
		Updates(map[string]any{"status": StatusExpired, "updated_at": now})
	return res.RowsAffected, res.Error
}

func (s *Store) CountBySetting(ctx context.Context, settingID string) (int64, error) {
	return s.awards.Count(ctx, &Award{AwardSettingID: settingID})
}
