package server

import (
	"testing"
	"time"
)

func TestIsDueHourly(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if !isDue("@hourly", nil, now) {
		t.Fatal("never-run hourly job should be due")
	}
	recent := now.Add(-30 * time.Minute)
	if isDue("@hourly", &recent, now) {
		t.Fatal("hourly job run 30m ago should not be due")
	}
	old := now.Add(-2 * time.Hour)
	if !isDue("@hourly", &old, now) {
		t.Fatal("hourly job run 2h ago should be due")
	}
}

func TestIsDueDaily(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	yesterday := now.Add(-25 * time.Hour)
	if !isDue("@daily", &yesterday, now) {
		t.Fatal("daily job run 25h ago should be due")
	}
	thisMorning := now.Add(-6 * time.Hour)
	if isDue("@daily", &thisMorning, now) {
		t.Fatal("daily job run 6h ago should not be due")
	}
}

func TestIsDueCronExpression(t *testing.T) {
	// Every day at 09:00.
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	beforeNine := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	if !isDue("0 9 * * *", &beforeNine, now) {
		t.Fatal("job last run before 09:00 should be due at noon")
	}
	afterNine := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	if isDue("0 9 * * *", &afterNine, now) {
		t.Fatal("job run at 09:30 should not be due again today")
	}
}

func TestIsDueInvalidSpecDegradesToDaily(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if !isDue("not a cron", nil, now) {
		t.Fatal("never-run job should be due")
	}
	recent := now.Add(-time.Hour)
	if isDue("not a cron", &recent, now) {
		t.Fatal("invalid spec should behave like @daily")
	}
}
