package utils

// Truncate shortens s to at most n runes, appending an ellipsis when
// anything was cut. Used to keep log lines and telemetry payloads small.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= n {
		return s
	}

	return string(runes[:n]) + "…"
}
