package clock

import "time"

// Clock supplies "now" and the tenant-local calendar-day derivation used by
// order construction and the reporting window filter. Both must agree on
// the zone, so the derivation lives here and nowhere else.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

type systemClock struct {
	loc *time.Location
}

// NewSystem creates a Clock over the given IANA zone name, falling back to
// IST (UTC+5:30) if the zone database is unavailable.
func NewSystem(zone string) Clock {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		loc = time.FixedZone("IST", (5*60+30)*60)
	}
	return &systemClock{loc: loc}
}

func (c *systemClock) Now() time.Time           { return time.Now().In(c.loc) }
func (c *systemClock) Location() *time.Location { return c.loc }

// DayOf truncates t to midnight of its calendar day in loc.
func DayOf(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// Fixed is a Clock pinned to a single instant, for tests.
type Fixed struct {
	Instant time.Time
	Loc     *time.Location
}

func (f Fixed) Now() time.Time           { return f.Instant.In(f.Loc) }
func (f Fixed) Location() *time.Location { return f.Loc }
