package domain

import "fmt"

// Mode — класс приоритета очереди.
//
// normal — одиночные и небольшие пакеты звонков, низкая задержка.
// bulk — массовые кампании, большая пропускная способность.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeBulk   Mode = "bulk"
)

// BulkBatchThreshold — пакеты больше этого размера уходят в bulk.
const BulkBatchThreshold = 5

// Топики очереди.
const (
	TopicNormal = "agent_outbound_requests"
	TopicBulk   = "agent_outbound_requests_bulk"
)

// Modes возвращает все режимы.
func Modes() []Mode {
	return []Mode{ModeNormal, ModeBulk}
}

// Topic возвращает топик очереди для режима.
func (m Mode) Topic() string {
	if m == ModeBulk {
		return TopicBulk
	}
	return TopicNormal
}

// String возвращает строковое представление Mode.
func (m Mode) String() string {
	return string(m)
}

// ParseMode парсит строку в Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeNormal:
		return ModeNormal, nil
	case ModeBulk:
		return ModeBulk, nil
	default:
		return "", fmt.Errorf("unknown mode %q (expected normal or bulk)", s)
	}
}

// ModeForTopic определяет режим по имени топика.
func ModeForTopic(topic string) Mode {
	if topic == TopicBulk {
		return ModeBulk
	}
	return ModeNormal
}

// ModeForBatch определяет режим по размеру пакета.
func ModeForBatch(batchCount int) Mode {
	if batchCount > BulkBatchThreshold {
		return ModeBulk
	}
	return ModeNormal
}
