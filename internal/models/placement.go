package models

import "time"

// Placement records where a target physically sits. At most one placement
// per target is active at any time; assigning a new one closes the rest.
type Placement struct {
	ID         string     `db:"id" json:"id"`
	TargetKind TargetKind `db:"target_kind" json:"targetKind"`
	TargetID   string     `db:"target_id" json:"targetId"`
	LocationID string     `db:"location_id" json:"locationId"`
	Active     bool       `db:"active" json:"active"`
	FromDate   time.Time  `db:"from_date" json:"fromDate"`
	ToDate     *time.Time `db:"to_date" json:"toDate,omitempty"`
	Note       string     `db:"note" json:"note"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

// Target returns the placement's target reference.
func (p *Placement) Target() TargetRef {
	return TargetRef{Kind: p.TargetKind, ID: p.TargetID}
}
