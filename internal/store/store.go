package store

import (
	"context"
	"time"
)

// Store — примитивы key/value, sorted set и списков, на которых построены
// lock, governor, scheduler и metrics.
//
// Все мутирующие операции выполняются за один атомарный round trip:
// клиентские read-then-write над общими счётчиками запрещены.
type Store interface {
	// SetNX создаёт ключ, только если его нет. true — ключ создан этим вызовом.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Set записывает значение с TTL (ttl <= 0 — без срока жизни).
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get возвращает значение и признак наличия ключа.
	Get(ctx context.Context, key string) (string, bool, error)

	// Exists проверяет наличие ключа.
	Exists(ctx context.Context, key string) (bool, error)

	// Del удаляет ключи. Отсутствующие ключи игнорируются.
	Del(ctx context.Context, keys ...string) error

	// IncrWithTTL атомарно увеличивает счётчик и обновляет его TTL.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// DecrClamp атомарно уменьшает счётчик, не опуская его ниже нуля.
	// Счётчик, который ушёл бы в минус, удаляется.
	DecrClamp(ctx context.Context, key string) (int64, error)

	// CompareAndExpire обновляет TTL ключа, только если его значение равно value.
	// false — ключа нет или он принадлежит другому владельцу.
	CompareAndExpire(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// CompareAndDelete удаляет ключ, только если его значение равно value.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)

	// ZAdd добавляет (или обновляет) member с указанным score.
	ZAdd(ctx context.Context, key, member string, score float64) error

	// ZRangeByScore возвращает members с min <= score <= max по возрастанию score.
	// limit <= 0 — без ограничения.
	ZRangeByScore(ctx context.Context, key string, min, max float64, limit int64) ([]ScoredMember, error)

	// ZRem удаляет member и возвращает число удалённых элементов (0 или 1).
	// Используется как атомарный захват записи при sweep.
	ZRem(ctx context.Context, key, member string) (int64, error)

	// ZCard возвращает размер sorted set.
	ZCard(ctx context.Context, key string) (int64, error)

	// PushCapped добавляет значение в начало списка, обрезает его до maxLen
	// и обновляет TTL.
	PushCapped(ctx context.Context, key, value string, maxLen int64, ttl time.Duration) error

	// LRange возвращает элементы списка.
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error

	// Close освобождает соединения.
	Close() error
}

// ScoredMember — элемент sorted set.
type ScoredMember struct {
	Member string
	Score  float64
}
