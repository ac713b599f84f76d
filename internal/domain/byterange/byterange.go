// Пакет byterange — разбор заголовка Range (один диапазон bytes=A-B)
// относительно известного размера ресурса.
package byterange

import (
	"errors"
	"strconv"
	"strings"
)

// ErrNotSatisfiable — диапазон невыполним (ответ 416).
var ErrNotSatisfiable = errors.New("диапазон невыполним")

// Result — вычисленный диапазон ответа. End включительно.
type Result struct {
	// Partial — ответ 206 (true) или полный 200 (false)
	Partial bool
	Start   int64
	End     int64
	// Length = End - Start + 1
	Length int64
}

// Full возвращает диапазон на весь ресурс.
// Для пустого ресурса End = -1, Length = 0.
func Full(total int64) Result {
	return Result{Partial: false, Start: 0, End: total - 1, Length: total}
}

// Resolve вычисляет диапазон ответа по значению заголовка Range.
//
// Пустой заголовок — полный ответ. Поддерживается только одиночный
// диапазон bytes=start-[end]; end за пределами ресурса усекается до total-1.
// Множественные и суффиксные диапазоны, start > end, start >= total
// и некорректный синтаксис — ErrNotSatisfiable.
func Resolve(header string, total int64) (Result, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Full(total), nil
	}

	unit, spec, ok := strings.Cut(header, "=")
	if !ok || !strings.EqualFold(strings.TrimSpace(unit), "bytes") {
		return Result{}, ErrNotSatisfiable
	}
	if strings.Contains(spec, ",") {
		return Result{}, ErrNotSatisfiable
	}

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return Result{}, ErrNotSatisfiable
	}

	start, ok := parseOffset(startStr)
	if !ok {
		return Result{}, ErrNotSatisfiable
	}
	if start >= total {
		return Result{}, ErrNotSatisfiable
	}

	end := total - 1
	if strings.TrimSpace(endStr) != "" {
		e, ok := parseOffset(endStr)
		if !ok {
			return Result{}, ErrNotSatisfiable
		}
		if e < end {
			end = e
		}
	}
	if start > end {
		return Result{}, ErrNotSatisfiable
	}

	return Result{Partial: true, Start: start, End: end, Length: end - start + 1}, nil
}

// ContentRange возвращает значение заголовка Content-Range для частичного ответа.
func (r Result) ContentRange(total int64) string {
	return "bytes " + strconv.FormatInt(r.Start, 10) + "-" +
		strconv.FormatInt(r.End, 10) + "/" + strconv.FormatInt(total, 10)
}

// UnsatisfiedContentRange возвращает Content-Range для ответа 416.
func UnsatisfiedContentRange(total int64) string {
	return "bytes */" + strconv.FormatInt(total, 10)
}

// parseOffset разбирает неотрицательное десятичное число (только цифры).
func parseOffset(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
