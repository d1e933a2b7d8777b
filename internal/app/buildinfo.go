package app

import (
	"runtime/debug"
	"strings"
	"time"
)

var (
	// Version is filled by ldflags in release builds.
	Version = "dev"
	// BuildDate is filled by ldflags in release builds.
	BuildDate = ""
)

const shortRevisionLen = 7

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version  string
	Date     string
	Revision string
	Modified bool
}

// CurrentBuild combines ldflags values with the VCS stamp embedded by the
// go toolchain. ldflags win when both are present.
func CurrentBuild() BuildInfo {
	info := BuildInfo{Version: strings.TrimSpace(Version), Date: normalizeBuildDate(BuildDate)}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = info.withSettings(bi.Settings)
	}
	if info.Version == "" {
		info.Version = "dev"
	}

	return info
}

func (b BuildInfo) withSettings(settings []debug.BuildSetting) BuildInfo {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			b.Revision = s.Value
		case "vcs.time":
			if b.Date == "" {
				b.Date = normalizeBuildDate(s.Value)
			}
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}

	return b
}

// String renders e.g. "1.4.0 (2025-02-01, a1b2c3d-dirty)".
func (b BuildInfo) String() string {
	var details []string
	if b.Date != "" {
		details = append(details, b.Date)
	}
	if rev := b.shortRevision(); rev != "" {
		details = append(details, rev)
	}
	if len(details) == 0 {
		return b.Version
	}

	return b.Version + " (" + strings.Join(details, ", ") + ")"
}

func (b BuildInfo) shortRevision() string {
	rev := b.Revision
	if len(rev) > shortRevisionLen {
		rev = rev[:shortRevisionLen]
	}
	if rev != "" && b.Modified {
		rev += "-dirty"
	}

	return rev
}

func normalizeBuildDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.UTC().Format(time.DateOnly)
	}
	if len(raw) >= len(time.DateOnly) {
		if _, err := time.Parse(time.DateOnly, raw[:len(time.DateOnly)]); err == nil {
			return raw[:len(time.DateOnly)]
		}
	}

	return raw
}
