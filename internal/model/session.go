package model

import (
	"time"
)

// SessionRecord is the durable view of one tenant session.
type SessionRecord struct {
	ID         int64         `db:"id" json:"-"`
	Token      string        `db:"token" json:"token"`
	Status     SessionStatus `db:"status" json:"status"`
	ScanID     *string       `db:"scan_id" json:"scanId,omitempty"`
	ScanName   *string       `db:"scan_name" json:"scanName,omitempty"`
	DeleteFlag DeleteFlag    `db:"delete_flag" json:"deleteFlag"`
	CreatedAt  time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time     `db:"updated_at" json:"updatedAt"`
}

func (r *SessionRecord) IsDeleted() bool {
	return r.DeleteFlag == DeleteFlagDeleted
}

// IsExpired reports whether the record never completed pairing within ttl.
func (r *SessionRecord) IsExpired(now time.Time, ttl time.Duration) bool {
	return r.Status == SessionStatusUnauthenticated &&
		r.DeleteFlag == DeleteFlagActive &&
		r.CreatedAt.Before(ExpiryCutoff(now, ttl))
}

// ExpiryCutoff is the creation time before which an unauthenticated record is expired.
func ExpiryCutoff(now time.Time, ttl time.Duration) time.Time {
	return now.Add(-ttl)
}

// AccountIdentity is the remote account a session is paired with.
type AccountIdentity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (a *AccountIdentity) IsZero() bool {
	return a == nil || (a.ID == "" && a.Name == "")
}
