package offer

import (
	"fmt"
	"strings"
	"time"

	"github.com/tripnest/service-booking/internal/common/domain"
)

const (
	dateLayout   = "2006-01-02"
	defaultCabin = "economy"
	maxTravelers = 9
)

var validCabins = map[string]bool{
	"economy":         true,
	"premium_economy": true,
	"business":        true,
	"first":           true,
}

// SearchQuery is a traveler's trip search.
type SearchQuery struct {
	Origin      string     `json:"origin"`
	Destination string     `json:"destination"`
	DepartDate  time.Time  `json:"depart_date"`
	ReturnDate  *time.Time `json:"return_date,omitempty"`
	Travelers   int        `json:"travelers"`
	Cabin       string     `json:"cabin"`
}

// Normalize returns the canonical form of the query: trimmed upper-case
// airport codes, lower-case cabin and dates truncated to UTC midnight.
func (q SearchQuery) Normalize() SearchQuery {
	out := q
	out.Origin = strings.ToUpper(strings.TrimSpace(q.Origin))
	out.Destination = strings.ToUpper(strings.TrimSpace(q.Destination))
	out.Cabin = strings.ToLower(strings.TrimSpace(q.Cabin))
	if out.Cabin == "" {
		out.Cabin = defaultCabin
	}
	out.DepartDate = truncateDay(q.DepartDate)
	if q.ReturnDate != nil {
		rd := truncateDay(*q.ReturnDate)
		out.ReturnDate = &rd
	}
	return out
}

// Validate checks a normalized query.
func (q SearchQuery) Validate() error {
	if len(q.Origin) != 3 || len(q.Destination) != 3 {
		return domain.NewValidationError("origin and destination must be 3-letter airport codes")
	}
	if q.Origin == q.Destination {
		return domain.NewValidationError("origin and destination must differ")
	}
	if q.DepartDate.IsZero() {
		return domain.NewValidationError("depart date is required")
	}
	if q.ReturnDate != nil && q.ReturnDate.Before(q.DepartDate) {
		return domain.NewValidationError("return date must not be before depart date")
	}
	if q.Travelers < 1 || q.Travelers > maxTravelers {
		return domain.NewValidationError(fmt.Sprintf("travelers must be between 1 and %d", maxTravelers))
	}
	if !validCabins[q.Cabin] {
		return domain.NewValidationError(fmt.Sprintf("invalid cabin: %s", q.Cabin))
	}
	return nil
}

// Key is the canonical cache key. Queries that normalize identically share a key.
func (q SearchQuery) Key() string {
	n := q.Normalize()
	ret := "-"
	if n.ReturnDate != nil {
		ret = n.ReturnDate.Format(dateLayout)
	}
	return fmt.Sprintf("%s:%s:%s:%s:%d:%s",
		n.Origin, n.Destination, n.DepartDate.Format(dateLayout), ret, n.Travelers, n.Cabin)
}

// Nights is the hotel stay length implied by the query. One-way trips get one night.
func (q SearchQuery) Nights() int {
	if q.ReturnDate == nil {
		return 1
	}
	n := int(q.ReturnDate.Sub(q.DepartDate).Hours() / 24)
	if n < 1 {
		return 1
	}
	return n
}

func truncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
