package listing

import (
	"bytes"
	"slices"
	"time"

	"github.com/credit-title-marketplace/internal/domain/title"
	"github.com/google/uuid"
)

// SortField selects the ordering of search results
type SortField string

const (
	SortBySuggestedValue SortField = "suggested_value"
	SortByExpiry         SortField = "expires_at"
	SortByCreatedAt      SortField = "created_at"
)

func (f SortField) Valid() bool {
	return f == "" || f == SortBySuggestedValue || f == SortByExpiry || f == SortByCreatedAt
}

// Column is the stored column the field sorts on. The zero field sorts by creation time.
func (f SortField) Column() string {
	if f == "" {
		return string(SortByCreatedAt)
	}
	return string(f)
}

// Filter describes a marketplace search. Zero values match everything.
type Filter struct {
	TitleType title.Type
	Category  title.Category
	Modality  Modality
	Status    Status // matched against EffectiveStatus
	SellerID  uuid.UUID
	MinPrice  int64 // on suggested value
	MaxPrice  int64
	Sector    string
	Region    string
	SortBy    SortField
	Desc      bool
	Limit     int
	Offset    int
}

// Matches reports whether l satisfies f at now
func (f Filter) Matches(l *Listing, now time.Time) bool {
	if f.TitleType != "" && l.TitleType != f.TitleType {
		return false
	}
	if f.Category != "" && l.Category != f.Category {
		return false
	}
	if f.Modality != "" && l.Modality != f.Modality {
		return false
	}
	if f.Status != "" && l.EffectiveStatus(now) != f.Status {
		return false
	}
	if f.SellerID != uuid.Nil && l.SellerID != f.SellerID {
		return false
	}
	if f.MinPrice > 0 && l.Pricing.SuggestedValue < f.MinPrice {
		return false
	}
	if f.MaxPrice > 0 && l.Pricing.SuggestedValue > f.MaxPrice {
		return false
	}
	if f.Sector != "" && !allows(l.Restrictions.Sectors, f.Sector) {
		return false
	}
	if f.Region != "" && !allows(l.Restrictions.Regions, f.Region) {
		return false
	}
	return true
}

// allows treats an empty restriction list as open to everyone
func allows(restricted []string, v string) bool {
	return len(restricted) == 0 || slices.Contains(restricted, v)
}

// View is a copy of l carrying its effective status at now
func (l *Listing) View(now time.Time) *Listing {
	view := *l
	view.Status = l.EffectiveStatus(now)
	return &view
}

// Project filters, sorts and pages listings in memory without mutating them.
// Ties are broken by listing id so the order is stable across calls.
func Project(listings []*Listing, f Filter, now time.Time) []*Listing {
	out := make([]*Listing, 0, len(listings))
	for _, l := range listings {
		if f.Matches(l, now) {
			out = append(out, l.View(now))
		}
	}

	slices.SortStableFunc(out, func(a, b *Listing) int {
		c := compareBy(f.SortBy, a, b)
		if f.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []*Listing{}
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func compareBy(field SortField, a, b *Listing) int {
	switch field {
	case SortBySuggestedValue:
		return cmpInt64(a.Pricing.SuggestedValue, b.Pricing.SuggestedValue)
	case SortByExpiry:
		return a.ExpiresAt.Compare(b.ExpiresAt)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
