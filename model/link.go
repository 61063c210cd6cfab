package model

import "time"

// Link is a short link owned by exactly one user. The derived click count is
// never stored on the link itself; it is always computed from ClickEvents
// (bulk query on load, ±1 stream deltas afterwards).
type Link struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	DestinationURL     string    `json:"destinationURL"`
	Slug               string    `json:"slug"` // unique per deployment
	Tags               []string  `json:"tags,omitempty"`
	Folder             string    `json:"folder,omitempty"`
	Description        string    `json:"description,omitempty"`
	ConversionTracking bool      `json:"conversionTracking,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

// LinkWithClicks pairs a link with its current click count for API
// responses and the reconciliation cache.
type LinkWithClicks struct {
	Link
	Clicks int64 `json:"clicks"`
}
