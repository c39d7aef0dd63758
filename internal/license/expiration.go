package license

import (
	"errors"
	"fmt"
	"time"

	"licensegate/pkg/contracts/domain"
)

// ExpirationKind tags the Expiration variant
type ExpirationKind int

const (
	// ExpiresNever always passes
	ExpiresNever ExpirationKind = iota
	// ExpiresAt passes until a fixed date
	ExpiresAt
	// ExpiresDurationPending has not been activated yet
	ExpiresDurationPending
	// ExpiresDurationActive was activated and now behaves like ExpiresAt
	ExpiresDurationActive
)

func (k ExpirationKind) String() string {
	switch k {
	case ExpiresNever:
		return "never"
	case ExpiresAt:
		return "at"
	case ExpiresDurationPending:
		return "duration_pending"
	case ExpiresDurationActive:
		return "duration_active"
	default:
		return "unknown"
	}
}

// ErrNotPending is returned when Activate is called on a settled expiration
var ErrNotPending = errors.New("expiration is not pending activation")

// Expiration is the explicit state of a license expiry
type Expiration struct {
	kind      ExpirationKind
	date      time.Time
	days      int
	start     domain.ExpirationStart
	createdAt time.Time
}

// Never is the non-expiring variant
func Never() Expiration { return Expiration{kind: ExpiresNever} }

// At expires after date
func At(date time.Time) Expiration { return Expiration{kind: ExpiresAt, date: date} }

// DurationPending lasts days from its anchor once activated
func DurationPending(days int, start domain.ExpirationStart, createdAt time.Time) Expiration {
	return Expiration{kind: ExpiresDurationPending, days: days, start: start, createdAt: createdAt}
}

// DurationActive is an activated duration expiring at date
func DurationActive(date time.Time) Expiration {
	return Expiration{kind: ExpiresDurationActive, date: date}
}

// ExpirationOf reads the state from a license record
func ExpirationOf(l *domain.License) (Expiration, error) {
	switch l.ExpirationType {
	case domain.ExpirationNever, "":
		return Never(), nil
	case domain.ExpirationDate:
		if l.ExpirationDate == nil {
			return Expiration{}, fmt.Errorf("license %s: DATE expiration without a date", l.ID)
		}
		return At(*l.ExpirationDate), nil
	case domain.ExpirationDuration:
		if l.ExpirationDate != nil {
			return DurationActive(*l.ExpirationDate), nil
		}
		if l.ExpirationDays == nil || *l.ExpirationDays <= 0 {
			return Expiration{}, fmt.Errorf("license %s: DURATION expiration without days", l.ID)
		}
		return DurationPending(*l.ExpirationDays, l.ExpirationStart, l.CreatedAt), nil
	default:
		return Expiration{}, fmt.Errorf("license %s: unknown expiration type %q", l.ID, l.ExpirationType)
	}
}

// Kind returns the variant tag
func (e Expiration) Kind() ExpirationKind { return e.kind }

// Pending reports whether Activate must run before the check
func (e Expiration) Pending() bool { return e.kind == ExpiresDurationPending }

// Date returns the expiry date for the dated variants
func (e Expiration) Date() (time.Time, bool) {
	if e.kind == ExpiresAt || e.kind == ExpiresDurationActive {
		return e.date, true
	}
	return time.Time{}, false
}

// Activate is the single transition out of DurationPending. The date is
// anchored at now, or at creation for CREATION-start licenses.
func (e Expiration) Activate(now time.Time) (Expiration, error) {
	if e.kind != ExpiresDurationPending {
		return e, ErrNotPending
	}
	anchor := now
	if e.start == domain.ExpirationStartCreation && !e.createdAt.IsZero() {
		anchor = e.createdAt
	}
	return DurationActive(anchor.AddDate(0, 0, e.days)), nil
}

// Expired reports whether the license is past its expiry at now. A pending
// duration is never expired; it has to be activated first.
func (e Expiration) Expired(now time.Time) bool {
	switch e.kind {
	case ExpiresAt, ExpiresDurationActive:
		return now.After(e.date)
	default:
		return false
	}
}
