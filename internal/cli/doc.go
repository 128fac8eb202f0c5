// Package cli реализует инструмент командной строки Callflow.
//
// CLI работает через admin API по HTTP и не импортирует внутренние
// пакеты системы, поэтому типы ответов продублированы в client.go.
//
//	client := cli.NewClient("http://localhost:8080")
//	stats, err := client.Stats()
//
// Вывод: таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные пишутся в stdout, сообщения Success/Error в stderr:
//
//	callflow scheduled list --json | jq .
//
// Группы команд:
//   - task: enqueue, show
//   - run: show
//   - stats
//   - scheduled: list, sweep
//   - counters: reset
//
// Каждая группа создаётся фабрикой (NewTaskCmd и т.д.), которая получает
// clientFn и outputFn, чтобы Client и Output создавались после разбора
// PersistentFlags.
package cli
