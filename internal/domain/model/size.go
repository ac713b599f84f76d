package model

import "fmt"

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// ReadableSize форматирует размер в байтах: основание 1024, два знака после точки.
// nil означает неизвестный размер и даёт "0 B".
func ReadableSize(size *int64) string {
	if size == nil {
		return "0 B"
	}

	value := float64(*size)
	unit := 0
	for value >= 1024 && unit < len(sizeUnits)-1 {
		value /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %s", value, sizeUnits[unit])
}
