package catalog

import (
	"time"

	"smallbiznis-rewards/pkg/celengine"
)

// ConditionInput is the streak snapshot an AwardSetting condition is evaluated against.
type ConditionInput struct {
	CurrentStreak  int
	LongestStreak  int
	TotalLoginDays int
	EventDate      time.Time
}

func (in ConditionInput) attributes() map[string]any {
	return map[string]any{
		"current_streak":   int64(in.CurrentStreak),
		"longest_streak":   int64(in.LongestStreak),
		"total_login_days": int64(in.TotalLoginDays),
		"weekday":          int64(in.EventDate.Weekday()),
		"event_date":       in.EventDate.Format(time.DateOnly),
	}
}

var conditions = mustConditionEngine()

func mustConditionEngine() *celengine.Engine {
	engine, err := celengine.NewEngine(ConditionInput{}.attributes())
	if err != nil {
		panic(err)
	}
	return engine
}

// ValidateCondition reports whether expr compiles to a boolean over the condition variables.
func ValidateCondition(expr string) error {
	if expr == "" {
		return nil
	}
	return conditions.Validate(expr)
}

// ConditionHolds is true for settings without a condition.
func (s *AwardSetting) ConditionHolds(in ConditionInput) (bool, error) {
	if s.Condition == "" {
		return true, nil
	}
	return conditions.Evaluate(s.Condition, in.attributes())
}
