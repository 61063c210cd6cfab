package model

import "time"

// ClickEvent records one successful redirect. Events are immutable once
// created; they are deleted only by administrative action.
type ClickEvent struct {
	ID        string    `json:"id"`
	LinkID    string    `json:"linkId"`
	ClickedAt time.Time `json:"clickedAt"`
}

// Notification kinds delivered on the click-event channel.
const (
	ClickInserted = "insert"
	ClickDeleted  = "delete"
)

// ClickNotification is the pub/sub payload published after every click
// write or delete. The channel carries events for all users; subscribers
// filter by link ID.
type ClickNotification struct {
	Kind      string    `json:"kind"`
	ClickID   string    `json:"clickId"`
	LinkID    string    `json:"linkId"`
	ClickedAt time.Time `json:"clickedAt"`
}
