// Package worker выполняет звонковые tasks.
//
// # Обзор
//
// Пакет состоит из двух частей:
//
//   - CallExecutor — обработка одной task от проверки дубликата до записи результата
//   - Pool — пул воркеров одного режима (normal или bulk), который опрашивает
//     очередь и раздаёт записи воркерам
//
// Процесс запускает два Pool: normal получает 30% воркеров, bulk — остальное,
// но каждый режим получает хотя бы одного воркера.
//
// # CallExecutor
//
//	exec := worker.NewCallExecutor(worker.ExecutorConfig{
//	    Tasks:    tasks,
//	    Locks:    locks,
//	    Governor: gov,
//	    Deferrer: sched,
//	    Selector: selector,
//	    Queue:    producer,
//	    Window:   window,
//	    Settings: worker.Settings{MaxRetries: 3, OutgoingCallsEnabled: true},
//	    Logger:   logger,
//	})
//	outcome := exec.Execute(ctx, job)
//
// После захвата блокировки освобождение ресурсов гарантировано при любом
// исходе: блокировка снимается, счётчик провайдера уменьшается,
// задержка записывается.
//
// # Pool
//
// Каждый воркер получает собственные зависимости через Factory.
// Цикл опроса:
//
//  1. освобождает слоты завершённых воркеров (только после снятия блокировки)
//  2. раз в SweepInterval возвращает в очередь созревшие отложенные tasks
//  3. при полной загрузке ждёт 2×PollInterval
//  4. забирает min(свободно, BatchSize) записей
//  5. откладывает tasks, чей провайдер на пределе
//  6. засыпает: >80% загрузки — 2×PollInterval, <30% — PollInterval/2
//
// # Повторы
//
// Повтор не выполняется в процессе: RetryClassifier решает, и task
// с retry_attempt+1 переотправляется в тот же топик. Запись очереди
// подтверждается при любом исходе, источником истины служит статус в TaskStore.
package worker
