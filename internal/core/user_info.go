package core

import "log/slog"

// UserInfo is the caller identity established by the API middleware.
type UserInfo struct {
	Subject string
	Issuer  string
	Groups  []string
}

// LogValue keeps group lists out of log lines.
func (u UserInfo) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("subject", u.Subject),
		slog.String("issuer", u.Issuer),
	)
}
