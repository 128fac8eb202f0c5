// Package mq предоставляет очередь task-сообщений для WorkerPool.
//
// Структура:
//   - queue.go      — интерфейсы Poller и Pusher, Record, кодек TaskMessage
//   - kafka.go      — Kafka backend (segmentio/kafka-go, ручной commit)
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — exchanges, очереди режимов и DLQ в RabbitMQ
//   - publisher.go  — публикация task-сообщений в RabbitMQ
//   - consumer.go   — потребление task-сообщений из RabbitMQ
//   - memory.go     — in-memory очередь для тестов
//
// Топики (и очереди RabbitMQ):
//   - agent_outbound_requests      — режим normal
//   - agent_outbound_requests_bulk — режим bulk
//
// Запись подтверждается (Ack) после обработки task. Повторная попытка
// публикуется заново через Pusher, исходная запись при этом подтверждается.
package mq
