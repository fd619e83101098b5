// Package scheduler запускает периодические задачи сервисов tableflow.
//
// Структура:
//   - schedule.go  — разбор cron-выражений и дескрипторов (@every 30s)
//   - scheduler.go — Scheduler на robfig/cron и задача закрытия сессий
//   - reloader.go  — перезагрузка реестра из хранилища
//
// Использование:
//
//	reloader := scheduler.NewReloader(docRepo, holder, logger)
//
//	sched := scheduler.New(scheduler.Config{Logger: logger})
//	sched.Add("registry-reload", cfg.ReloadSchedule, reloader.Reload)
//	sched.Add("session-sweep", cfg.SweepSchedule,
//	    scheduler.SweepJob(sessions, cfg.SessionIdle, logger))
//	sched.Start()
//	defer sched.Stop(shutdownCtx)
//
// Reloader также вызывается API после каждой записи документа.
package scheduler
