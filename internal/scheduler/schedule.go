package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// parser принимает пятипольные cron-выражения и дескрипторы
// (@every 30s, @hourly).
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule разбирает расписание задачи.
func ParseSchedule(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, fmt.Errorf("%w: empty", ErrBadSchedule)
	}
	s, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBadSchedule, expr, err)
	}
	return s, nil
}

// NextAfter возвращает время следующего срабатывания после from (в UTC).
func NextAfter(expr string, from time.Time) (time.Time, error) {
	s, err := ParseSchedule(expr)
	if err != nil {
		return time.Time{}, err
	}
	return s.Next(from).UTC(), nil
}
