package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Memory — in-memory реализация Store.
//
// Используется в тестах и для локального запуска без Redis
// (STORE_BACKEND=memory). Поддерживает TTL через подменяемые часы.
type Memory struct {
	mu     sync.Mutex
	now    func() time.Time
	values map[string]memValue
	zsets  map[string]map[string]float64
	lists  map[string]memList
	closed bool

	// failWith — если не nil, все операции возвращают эту ошибку.
	failWith error
}

var _ Store = (*Memory)(nil)

type memValue struct {
	value   string
	expires time.Time
}

type memList struct {
	items   []string
	expires time.Time
}

// NewMemory создаёт пустое in-memory хранилище.
func NewMemory() *Memory {
	return &Memory{
		now:    time.Now,
		values: make(map[string]memValue),
		zsets:  make(map[string]map[string]float64),
		lists:  make(map[string]memList),
	}
}

// SetClock подменяет часы (для тестов TTL).
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// FailWith заставляет все операции возвращать err (nil — отключить).
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

func (m *Memory) check() error {
	if m.closed {
		return ErrClosed
	}
	return m.failWith
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

func expired(exp, now time.Time) bool {
	return !exp.IsZero() && !now.Before(exp)
}

// value возвращает живое значение ключа, удаляя просроченное.
func (m *Memory) value(key string) (memValue, bool) {
	v, ok := m.values[key]
	if !ok {
		return memValue{}, false
	}
	if expired(v.expires, m.now()) {
		delete(m.values, key)
		return memValue{}, false
	}
	return v, true
}

func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return false, err
	}

	if _, ok := m.value(key); ok {
		return false, nil
	}
	m.values[key] = memValue{value: value, expires: expiry(m.now(), ttl)}
	return true, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}

	m.values[key] = memValue{value: value, expires: expiry(m.now(), ttl)}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return "", false, err
	}

	v, ok := m.value(key)
	return v.value, ok, nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return false, err
	}

	if _, ok := m.value(key); ok {
		return true, nil
	}
	if _, ok := m.zsets[key]; ok {
		return true, nil
	}
	l, ok := m.lists[key]
	return ok && !expired(l.expires, m.now()), nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}

	for _, key := range keys {
		delete(m.values, key)
		delete(m.zsets, key)
		delete(m.lists, key)
	}
	return nil
}

func (m *Memory) IncrWithTTL(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return 0, err
	}

	var n int64
	if v, ok := m.value(key); ok {
		parsed, err := strconv.ParseInt(v.value, 10, 64)
		if err != nil {
			return 0, ErrNotInteger
		}
		n = parsed
	}
	n++
	m.values[key] = memValue{value: strconv.FormatInt(n, 10), expires: expiry(m.now(), ttl)}
	return n, nil
}

func (m *Memory) DecrClamp(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return 0, err
	}

	v, ok := m.value(key)
	var n int64
	if ok {
		parsed, err := strconv.ParseInt(v.value, 10, 64)
		if err != nil {
			return 0, ErrNotInteger
		}
		n = parsed
	}
	n--
	if n < 0 {
		delete(m.values, key)
		return 0, nil
	}
	m.values[key] = memValue{value: strconv.FormatInt(n, 10), expires: v.expires}
	return n, nil
}

func (m *Memory) CompareAndExpire(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return false, err
	}

	v, ok := m.value(key)
	if !ok || v.value != value {
		return false, nil
	}
	v.expires = expiry(m.now(), ttl)
	m.values[key] = v
	return true, nil
}

func (m *Memory) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return false, err
	}

	v, ok := m.value(key)
	if !ok || v.value != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func (m *Memory) ZAdd(_ context.Context, key, member string, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}

	z, ok := m.zsets[key]
	if !ok {
		z = make(map[string]float64)
		m.zsets[key] = z
	}
	z[member] = score
	return nil
}

func (m *Memory) ZRangeByScore(_ context.Context, key string, min, max float64, limit int64) ([]ScoredMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	var members []ScoredMember
	for member, score := range m.zsets[key] {
		if score >= min && score <= max {
			members = append(members, ScoredMember{Member: member, Score: score})
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score == members[j].Score {
			return members[i].Member < members[j].Member
		}
		return members[i].Score < members[j].Score
	})
	if limit > 0 && int64(len(members)) > limit {
		members = members[:limit]
	}
	return members, nil
}

func (m *Memory) ZRem(_ context.Context, key, member string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return 0, err
	}

	z, ok := m.zsets[key]
	if !ok {
		return 0, nil
	}
	if _, ok := z[member]; !ok {
		return 0, nil
	}
	delete(z, member)
	if len(z) == 0 {
		delete(m.zsets, key)
	}
	return 1, nil
}

func (m *Memory) ZCard(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return 0, err
	}
	return int64(len(m.zsets[key])), nil
}

func (m *Memory) PushCapped(_ context.Context, key, value string, maxLen int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}

	l := m.lists[key]
	if expired(l.expires, m.now()) {
		l = memList{}
	}
	l.items = append([]string{value}, l.items...)
	if maxLen > 0 && int64(len(l.items)) > maxLen {
		l.items = l.items[:maxLen]
	}
	if ttl > 0 {
		l.expires = m.now().Add(ttl)
	}
	m.lists[key] = l
	return nil
}

func (m *Memory) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	l, ok := m.lists[key]
	if !ok || expired(l.expires, m.now()) {
		return nil, nil
	}

	n := int64(len(l.items))
	if start < 0 {
		start = max(n+start, 0)
	}
	if stop < 0 {
		stop = n + stop
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return nil, nil
	}

	out := make([]string, stop-start+1)
	copy(out, l.items[start:stop+1])
	return out, nil
}

func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.check()
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
