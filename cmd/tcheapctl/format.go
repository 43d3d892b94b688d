package main

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// printer groups digits the way an English reader expects.
var printer = message.NewPrinter(language.English)

func formatNumber[T ~int | ~int64 | ~uint64 | ~uintptr](n T) string {
	return printer.Sprintf("%d", n)
}

func formatBytes[T ~int | ~int64 | ~uint64 | ~uintptr](n T) string {
	const unit = 1024
	bytes := uint64(n)
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for m := bytes / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return printer.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func formatRate(ops uint64, seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return printer.Sprintf("%.0f ops/s", float64(ops)/seconds)
}
