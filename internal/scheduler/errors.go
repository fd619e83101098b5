package scheduler

import "errors"

var (
	// ErrBadSchedule — некорректное cron-выражение.
	ErrBadSchedule = errors.New("invalid schedule")

	// ErrStarted — задачи нельзя добавлять после Start.
	ErrStarted = errors.New("scheduler already started")
)
