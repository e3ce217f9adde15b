package models

// TargetKind discriminates the two archivable record kinds.
type TargetKind string

const (
	TargetKindDocument TargetKind = "document"
	TargetKindFolder   TargetKind = "folder"
)

// TargetRef points at an archivable entity without a hard foreign key.
// Keeping the kind explicit gives exhaustive switches when new entity
// kinds are added.
type TargetRef struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id"`
}

// Valid reports whether the reference names a known kind and an ID.
func (t TargetRef) Valid() bool {
	if t.ID == "" {
		return false
	}
	return t.Kind == TargetKindDocument || t.Kind == TargetKindFolder
}

// Default status a target is moved to when discharged by an outbound batch,
// unless the line overrides it.
const (
	DocumentStatusDischarged = "Scaricato"
	FolderStatusDischarged   = "Scaricato"
)

// Subject is the billing/registry party protocol entries and sequence
// counters are partitioned by. Owned by the client registry; consumed here.
type Subject struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Document is an archivable record. Created by the surrounding business
// app; status, outstanding flag and location are mutated only by this core.
type Document struct {
	ID        string  `db:"id" json:"id"`
	Title     string  `db:"title" json:"title"`
	Status    string  `db:"status" json:"status"`
	FolderID  *string `db:"folder_id" json:"folderId,omitempty"`
	SubjectID *string `db:"subject_id" json:"subjectId,omitempty"`
	Digital   bool    `db:"digital" json:"digital"`
	Trackable bool    `db:"trackable" json:"trackable"`
	// OutOpen is true while the document has an open outbound movement.
	OutOpen bool `db:"out_open" json:"outOpen"`
}

// Folder groups documents and carries its own status and subject.
type Folder struct {
	ID        string  `db:"id" json:"id"`
	Code      string  `db:"code" json:"code"`
	Status    string  `db:"status" json:"status"`
	SubjectID *string `db:"subject_id" json:"subjectId,omitempty"`
}

// Ref returns the target reference for the document.
func (d *Document) Ref() TargetRef {
	return TargetRef{Kind: TargetKindDocument, ID: d.ID}
}

// Ref returns the target reference for the folder.
func (f *Folder) Ref() TargetRef {
	return TargetRef{Kind: TargetKindFolder, ID: f.ID}
}
