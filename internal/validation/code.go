// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"unicode"
)

// ErrInvalidCode возвращается, если код подтверждения имеет неверный формат.
var ErrInvalidCode = errors.New("verification code must be exactly four digits")

// ParseVerificationCode проверяет формат кода подтверждения (ровно четыре
// цифры) и возвращает его числовое значение. Ведущие нули допускаются:
// сравнение кодов выполняется по числовому значению.
func ParseVerificationCode(code string) (int, error) {
	if len(code) != 4 {
		return 0, ErrInvalidCode
	}

	value := 0
	for _, ch := range code {
		if !unicode.IsDigit(ch) {
			return 0, ErrInvalidCode
		}
		value = value*10 + int(ch-'0')
	}

	return value, nil
}
