package transport

import "log/slog"

// endpointLogger tags records with the transport kind and, when known, the
// endpoint it talks to.
func endpointLogger(kind, target string) *slog.Logger {
	attrs := []any{slog.String("component", "transport"), slog.String("transport", kind)}
	if target != "" {
		attrs = append(attrs, slog.String("target", target))
	}

	return slog.Default().With(attrs...)
}
