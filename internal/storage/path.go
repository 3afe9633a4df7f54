package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildResultArchivePath lays out result exports by target and UTC day so a
// bucket listing groups them the same way the audit log does.
func BuildResultArchivePath(targetName, sessionID string, executedAt time.Time) (string, error) {
	if err := ValidatePathComponent(targetName, "target name"); err != nil {
		return "", err
	}
	if err := ValidatePathComponent(sessionID, "session id"); err != nil {
		return "", err
	}
	ts := executedAt.UTC()
	return path.Join(
		"results",
		targetName,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("%s-%d.parquet", sessionID, ts.UnixMilli()),
	), nil
}

func ValidatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
