package models

import "time"

// Direction of a registry movement.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// ProtocolEntry is an immutable movement record. Exactly one of DocumentID
// and FolderID is set. After creation only Closed and, for internal
// transfers, LocationID are ever updated.
type ProtocolEntry struct {
	ID             string     `db:"id" json:"id"`
	DocumentID     *string    `db:"document_id" json:"documentId,omitempty"`
	FolderID       *string    `db:"folder_id" json:"folderId,omitempty"`
	SubjectID      string     `db:"subject_id" json:"subjectId"`
	Direction      Direction  `db:"direction" json:"direction"`
	RecordedAt     time.Time  `db:"recorded_at" json:"recordedAt"`
	Year           int        `db:"year" json:"year"`
	Number         int64      `db:"number" json:"number"`
	Operator       string     `db:"operator" json:"operator"`
	Counterpart    string     `db:"counterpart" json:"counterpart"`
	CounterpartID  *string    `db:"counterpart_id" json:"counterpartId,omitempty"`
	LocationID     *string    `db:"location_id" json:"locationId,omitempty"`
	Closed         bool       `db:"closed" json:"closed"`
	ClosesID       *string    `db:"closes_id" json:"closesId,omitempty"`
	ExpectedReturn *time.Time `db:"expected_return" json:"expectedReturn,omitempty"`
	Reason         string     `db:"reason" json:"reason"`
	Notes          string     `db:"notes" json:"notes"`
}

// Target returns the entry's target reference.
func (e *ProtocolEntry) Target() TargetRef {
	if e.DocumentID != nil {
		return TargetRef{Kind: TargetKindDocument, ID: *e.DocumentID}
	}
	if e.FolderID != nil {
		return TargetRef{Kind: TargetKindFolder, ID: *e.FolderID}
	}
	return TargetRef{}
}

// ProtocolFilter constrains register listing queries.
type ProtocolFilter struct {
	SubjectID  string
	Year       int
	Direction  Direction
	Closed     *bool
	DocumentID string
	FolderID   string
	Limit      int
	Offset     int
}
