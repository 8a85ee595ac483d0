// Package catalog prices the services a house-call visit can include.
package catalog

import (
	"fmt"
	"sort"

	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/model"
)

type Service struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
}

// Catalog is an immutable code -> service table.
type Catalog struct {
	items map[string]Service
}

func New(items ...Service) *Catalog {
	c := &Catalog{items: make(map[string]Service, len(items))}
	for _, it := range items {
		c.items[it.Code] = it
	}
	return c
}

// Default is the house-call menu offered to owners.
func Default() *Catalog {
	return New(
		Service{Code: "house_call", Name: "House call visit", PriceCents: 9900},
		Service{Code: "wellness_exam", Name: "Wellness exam", PriceCents: 6500},
		Service{Code: "vaccination", Name: "Vaccination", PriceCents: 4500},
		Service{Code: "sick_visit", Name: "Sick visit", PriceCents: 8500},
		Service{Code: "blood_work", Name: "Blood work", PriceCents: 12000},
		Service{Code: "nail_trim", Name: "Nail trim", PriceCents: 2500},
		Service{Code: "euthanasia", Name: "In-home euthanasia", PriceCents: 35000},
	)
}

func (c *Catalog) List() []Service {
	out := make([]Service, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Price resolves codes into line items and their total. Duplicate codes
// are collapsed.
func (c *Catalog) Price(codes []string) ([]model.LineItem, int64, error) {
	seen := make(map[string]bool, len(codes))
	items := make([]model.LineItem, 0, len(codes))
	var total int64
	for _, code := range codes {
		if seen[code] {
			continue
		}
		seen[code] = true
		svc, ok := c.items[code]
		if !ok {
			return nil, 0, fmt.Errorf("unknown service %q", code)
		}
		items = append(items, model.LineItem{Code: svc.Code, Name: svc.Name, PriceCents: svc.PriceCents})
		total += svc.PriceCents
	}
	return items, total, nil
}
