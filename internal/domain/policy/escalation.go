package policy

import (
	"time"

	"github.com/garyjia/controlled-docs/internal/domain/entity"
)

// DueLevel is a crossed escalation level that has not been notified yet
type DueLevel struct {
	// Level is the 1-based position in the sorted chain
	Level int
	entity.EscalationLevel
}

// ElapsedDays returns the fractional number of days between submission and now
func ElapsedDays(submittedAt, now time.Time) float64 {
	return now.Sub(submittedAt).Hours() / 24
}

// DueLevels returns every level whose threshold has been crossed and is above
// notifiedDays, the highest threshold already notified (entity.NoEscalationMark
// when none), in ascending order. A missed tick therefore yields all skipped
// levels on the next one. Thresholds are compared instead of positions, so a
// level inserted into the chain below notifiedDays is never sent late and the
// levels after it are not sent twice.
func DueLevels(chain entity.EscalationChain, submittedAt, now time.Time, notifiedDays int) []DueLevel {
	if !chain.Enabled || submittedAt.IsZero() {
		return nil
	}

	elapsed := ElapsedDays(submittedAt, now)
	var due []DueLevel
	for i, lvl := range chain.Sorted() {
		if float64(lvl.DaysAfter) > elapsed {
			break
		}
		if lvl.DaysAfter <= notifiedDays {
			continue
		}
		due = append(due, DueLevel{Level: i + 1, EscalationLevel: lvl})
	}
	return due
}
