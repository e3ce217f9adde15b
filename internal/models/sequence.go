package models

// SequenceCounter is the gapless per-partition counter backing protocol
// numbering. The row is only ever touched through a single conditional
// UPDATE, never read-modify-write.
type SequenceCounter struct {
	SubjectID  string    `db:"subject_id" json:"subjectId"`
	Year       int       `db:"year" json:"year"`
	Direction  Direction `db:"direction" json:"direction"`
	LastNumber int64     `db:"last_number" json:"lastNumber"`
}
