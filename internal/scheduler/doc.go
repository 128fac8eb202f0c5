// Package scheduler откладывает звонки до рабочих часов получателя.
//
// Структура:
//   - hours.go     — Window: проверка местного времени получателя по коду страны
//   - scheduler.go — Scheduler: Defer (hold + sorted set), Sweep (возврат в очередь)
//   - cron.go      — Runner: периодический Sweep по cron-выражению
//   - leader.go    — Elector и RunAsLeader: Runner работает только у лидера
//
// Ключи ResourceStore:
//
//	scheduled_tasks          — sorted set, score = время готовности (Unix)
//	scheduled_task:{task_id} — payload, TTL = max(24h, ожидание + 1h)
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Store:  st,
//	    Tasks:  taskStore,
//	    Queue:  queue,
//	    Logger: logger,
//	})
//
//	runner, _ := scheduler.NewRunner(sched, scheduler.RunnerConfig{Spec: "@every 1m"})
//	runner.Start(ctx)
//	defer runner.Stop()
//
// Leader Election:
//
// RunAsLeader запускает Runner, пока Elector подтверждает лидерство.
// В callflow-scheduler это repo.AdvisoryLock (pg_try_advisory_lock)
// или StoreElector, если TaskStore не PostgreSQL.
// Sweep безопасен и без лидера: записи захватываются через ZREM.
package scheduler
