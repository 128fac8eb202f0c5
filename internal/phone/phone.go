package phone

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalid — номер не удалось разобрать ни одной стратегией.
var ErrInvalid = errors.New("invalid phone number")

// DefaultRegion — регион для локальных номеров, если не задан иной.
const DefaultRegion = "IN"

// Number — разобранный номер.
type Number struct {
	// E164 — номер в формате E.164.
	E164 string

	// CountryCode — код страны без "+" (91, 1, 966).
	CountryCode int
}

// CallingCode возвращает код страны с "+" ("+91").
func (n Number) CallingCode() string {
	return "+" + strconv.Itoa(n.CountryCode)
}

// Parse разбирает номер в E.164.
func Parse(raw, defaultRegion string) (Number, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Number{}, fmt.Errorf("%w: empty", ErrInvalid)
	}
	if defaultRegion == "" {
		defaultRegion = DefaultRegion
	}

	attempts := make([][2]string, 0, 3)
	if !strings.HasPrefix(raw, "+") {
		attempts = append(attempts, [2]string{"+" + raw, ""})
	}
	attempts = append(attempts, [2]string{raw, ""}, [2]string{raw, defaultRegion})

	for _, a := range attempts {
		num, err := phonenumbers.Parse(a[0], a[1])
		if err != nil || !phonenumbers.IsValidNumber(num) {
			continue
		}
		return Number{
			E164:        phonenumbers.Format(num, phonenumbers.E164),
			CountryCode: int(num.GetCountryCode()),
		}, nil
	}

	return Number{}, fmt.Errorf("%w: %s", ErrInvalid, raw)
}

// Normalize возвращает номер в E.164.
func Normalize(raw, defaultRegion string) (string, error) {
	n, err := Parse(raw, defaultRegion)
	if err != nil {
		return "", err
	}
	return n.E164, nil
}

// RegionForCallingCode переводит код страны ("+91", "1") в ISO-регион ("IN", "US").
// Для неизвестного кода возвращает DefaultRegion.
func RegionForCallingCode(code string) string {
	cc, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(code), "+"))
	if err != nil {
		return DefaultRegion
	}
	region := phonenumbers.GetRegionCodeForCountryCode(cc)
	if region == "" || region == "ZZ" {
		return DefaultRegion
	}
	return region
}

// LastDigits возвращает последние n цифр номера (без прочих символов).
func LastDigits(raw string, n int) string {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, raw)
	if len(digits) > n {
		return digits[len(digits)-n:]
	}
	return digits
}
