package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

const historyRoot = "history"

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildHistoryArchivePath returns
// [prefix/]history/date=YYYY-MM-DD/history-<unix>.parquet for an archive
// written at the given time. The prefix may hold several components.
func BuildHistoryArchivePath(prefix string, archivedAt time.Time) (string, error) {
	root, err := HistoryArchiveRoot(prefix)
	if err != nil {
		return "", err
	}
	ts := archivedAt.UTC()
	return path.Join(
		root,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("history-%d.parquet", ts.Unix()),
	), nil
}

// HistoryArchiveRoot is the key prefix under which every archive lives.
func HistoryArchiveRoot(prefix string) (string, error) {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return historyRoot, nil
	}
	for _, component := range strings.Split(prefix, "/") {
		if err := validatePathComponent(component, "archive prefix"); err != nil {
			return "", err
		}
	}
	return path.Join(prefix, historyRoot), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
