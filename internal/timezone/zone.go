// Package timezone converts between the tenant's civil time and the time
// reference used by the availability feed.
package timezone

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"spacebook/internal/grid"
)

// Reference selects how feed time-of-day keys are interpreted.
type Reference string

const (
	// ReferenceUTC: feed keys are the UTC "HH:mm" of the slot instant.
	ReferenceUTC Reference = "utc"
	// ReferenceLocal: feed keys are tenant wall-clock "HH:mm".
	ReferenceLocal Reference = "local"
	// ReferenceDual tries the UTC key first and falls back to the raw key.
	// Kept for feeds whose contract is unknown.
	ReferenceDual Reference = "dual"
)

const DateLayout = "2006-01-02"

// ParseReference parses a configured reference. Empty means UTC.
func ParseReference(s string) (Reference, error) {
	switch r := Reference(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return ReferenceUTC, nil
	case ReferenceUTC, ReferenceLocal, ReferenceDual:
		return r, nil
	default:
		return "", fmt.Errorf("unknown time reference %q", s)
	}
}

// Zone is a tenant timezone together with the feed reference.
type Zone struct {
	loc *time.Location
	ref Reference
}

// New loads an IANA zone by name. Empty name means UTC.
func New(name string, ref Reference) (*Zone, error) {
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return NewWithLocation(loc, ref), nil
}

// NewWithLocation wraps an already loaded location.
func NewWithLocation(loc *time.Location, ref Reference) *Zone {
	if ref == "" {
		ref = ReferenceUTC
	}
	return &Zone{loc: loc, ref: ref}
}

func (z *Zone) Location() *time.Location { return z.loc }
func (z *Zone) Name() string             { return z.loc.String() }
func (z *Zone) Reference() Reference     { return z.ref }

// Date returns local midnight of the civil date that t falls on in the zone.
func (z *Zone) Date(t time.Time) time.Time {
	local := t.In(z.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, z.loc)
}

// ParseDate parses YYYY-MM-DD as a civil date in the zone.
func (z *Zone) ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, z.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q; expected YYYY-MM-DD", s)
	}
	return d, nil
}

// At returns the instant of wall-clock minute m on the civil date of date.
func (z *Zone) At(date time.Time, minute int) time.Time {
	d := date.In(z.loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, minute, 0, 0, z.loc)
}

// MinuteOfDay returns the wall-clock position of instant relative to local
// midnight of date. Instants on later days exceed 1440; earlier days are negative.
func (z *Zone) MinuteOfDay(instant, date time.Time) int {
	local := instant.In(z.loc)
	d := date.In(z.loc)
	days := civilDays(local) - civilDays(d)
	return days*grid.MinutesPerDay + local.Hour()*60 + local.Minute()
}

// IsToday reports whether date is the civil date of now in the zone.
func (z *Zone) IsToday(date, now time.Time) bool {
	if now.IsZero() {
		return false
	}
	return civilDays(date.In(z.loc)) == civilDays(now.In(z.loc))
}

// UTCKey returns the UTC "HH:mm" of the local wall-clock minute on date.
func (z *Zone) UTCKey(date time.Time, minute int) string {
	return z.At(date, minute).UTC().Format("15:04")
}

// FeedKey renders a local wall-clock minute in the feed's primary reference.
func (z *Zone) FeedKey(date time.Time, minute int) string {
	if z.ref == ReferenceLocal {
		return grid.FormatClock(minute % grid.MinutesPerDay)
	}
	return z.UTCKey(date, minute)
}

// Lookup finds the feed value for a local wall-clock minute on date.
func (z *Zone) Lookup(entries map[string]bool, date time.Time, minute int) (value, found bool) {
	localKey := grid.FormatClock(minute % grid.MinutesPerDay)
	switch z.ref {
	case ReferenceLocal:
		value, found = entries[localKey]
	case ReferenceDual:
		if value, found = entries[z.UTCKey(date, minute)]; !found {
			value, found = entries[localKey]
		}
	default:
		value, found = entries[z.UTCKey(date, minute)]
	}
	return value, found
}

func civilDays(t time.Time) int {
	u := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(u.Unix() / 86400)
}
