package models

import "time"

// Session binds a bearer token to an owner key.
type Session struct {
	Token     string `json:"-"`
	OwnerKey  string `json:"ownerKey"`
	CreatedAt int64  `json:"createdAt"` // unix millis
}

// Age returns how long ago the session was created.
func (s Session) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(s.CreatedAt))
}
