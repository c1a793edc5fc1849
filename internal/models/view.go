package models

import (
	"fmt"
	"time"
)

// View identifies one logical data product and its upstream page.
type View string

const (
	ViewLatest     View = "latest"
	ViewDsex       View = "dsex"
	ViewTop30      View = "top30"
	ViewHistorical View = "historical"
)

// Views lists every view in a stable order.
var Views = []View{ViewLatest, ViewDsex, ViewTop30, ViewHistorical}

// ParseView maps a name onto a View.
func ParseView(s string) (View, error) {
	for _, v := range Views {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown view %q", s)
}

// PageRequest describes one upstream page fetch. Range and Code are only
// meaningful for the historical view.
type PageRequest struct {
	View  View
	Range DateRange
	Code  string
}

// RefreshState is the per-view lifecycle of the refresh coordinator.
type RefreshState string

const (
	StateEmpty           RefreshState = "empty"
	StateFetching        RefreshState = "fetching"
	StateReady           RefreshState = "ready"
	StateRefreshingStale RefreshState = "refreshing_stale"
)

// ViewStatus is a point-in-time summary of one cached view.
type ViewStatus struct {
	View      View         `json:"view"`
	State     RefreshState `json:"state"`
	FetchedAt *time.Time   `json:"fetched_at,omitempty"`
	TTL       string       `json:"ttl"`
	Fresh     bool         `json:"fresh"`
	Records   int          `json:"records"`
	LastError string       `json:"last_error,omitempty"`
}
