package option

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption mutates a query before it is executed by a repository.
type QueryOption func(db *gorm.DB) *gorm.DB

type Operator string

const (
	EQ       Operator = "eq"
	NEQ      Operator = "neq"
	GT       Operator = "gt"
	GTE      Operator = "gte"
	LT       Operator = "lt"
	LTE      Operator = "lte"
	IN       Operator = "in"
	LIKE     Operator = "like"
	IsNull   Operator = "is_null"
	IsNotNil Operator = "is_not_null"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

const defaultSortColumn = "created_at"

// WithSortBy orders by SortBy when it is allowed, otherwise by created_at.
// The primary key breaks ties in the same direction.
func WithSortBy(s QuerySortBy) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		column := defaultSortColumn
		if s.SortBy != "" && s.Allow[s.SortBy] {
			column = s.SortBy
		}

		desc := strings.EqualFold(s.OrderBy, "desc")
		db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: desc})
		if column != "id" {
			db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: desc})
		}
		return db
	}
}

func ApplyOperator(c Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		column := clause.Column{Name: c.Field}
		switch c.Operator {
		case NEQ:
			return db.Where(clause.Neq{Column: column, Value: c.Value})
		case GT:
			return db.Where(clause.Gt{Column: column, Value: c.Value})
		case GTE:
			return db.Where(clause.Gte{Column: column, Value: c.Value})
		case LT:
			return db.Where(clause.Lt{Column: column, Value: c.Value})
		case LTE:
			return db.Where(clause.Lte{Column: column, Value: c.Value})
		case IN:
			values, ok := c.Value.([]any)
			if !ok {
				values = []any{c.Value}
			}
			return db.Where(clause.IN{Column: column, Values: values})
		case LIKE:
			return db.Where(clause.Like{Column: column, Value: c.Value})
		case IsNull:
			return db.Where(clause.Eq{Column: column, Value: nil})
		case IsNotNil:
			return db.Where(clause.Neq{Column: column, Value: nil})
		default:
			return db.Where(clause.Eq{Column: column, Value: c.Value})
		}
	}
}

func WithLimit(limit int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	}
}

func WithLockingUpdate() QueryOption {
	return LockingUpdate
}

// LockingUpdate is a gorm scope adding SELECT ... FOR UPDATE.
func LockingUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func WithLockingShare() QueryOption {
	return LockingShare
}

// LockingShare is a gorm scope adding SELECT ... FOR SHARE.
func LockingShare(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "SHARE"})
}
