package models

import "time"

// BatchKind enumerates the archive operation kinds.
type BatchKind string

const (
	BatchKindInbound          BatchKind = "INBOUND"
	BatchKindOutbound         BatchKind = "OUTBOUND"
	BatchKindInternalTransfer BatchKind = "INTERNAL_TRANSFER"
)

// IsValidBatchKind reports whether k is a known batch kind.
func IsValidBatchKind(k BatchKind) bool {
	switch k {
	case BatchKindInbound, BatchKindOutbound, BatchKindInternalTransfer:
		return true
	}
	return false
}

// ArchiveBatch is one archive operation: an ordered set of lines processed
// atomically, exactly once per edit (reprocessing is idempotent).
type ArchiveBatch struct {
	ID          string     `db:"id" json:"id"`
	Kind        BatchKind  `db:"kind" json:"kind"`
	OccurredAt  time.Time  `db:"occurred_at" json:"occurredAt"`
	Operator    string     `db:"operator" json:"operator"`
	Counterpart *string    `db:"counterpart" json:"counterpart,omitempty"`
	Note        string     `db:"note" json:"note"`
	ProofRef    *string    `db:"proof_ref" json:"proofRef,omitempty"`
	ProcessedAt *time.Time `db:"processed_at" json:"processedAt,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`

	Lines []BatchLine `db:"-" json:"lines,omitempty"`
}

// BatchLine targets one archivable record within a batch. The resolved
// source/destination and the status pair are written back on processing.
type BatchLine struct {
	ID               string  `db:"id" json:"id"`
	BatchID          string  `db:"batch_id" json:"batchId"`
	Position         int     `db:"position" json:"position"`
	DocumentID       *string `db:"document_id" json:"documentId,omitempty"`
	FolderID         *string `db:"folder_id" json:"folderId,omitempty"`
	ProtocolEntryID  *string `db:"protocol_entry_id" json:"protocolEntryId,omitempty"`
	SourceLocationID *string `db:"source_location_id" json:"sourceLocationId,omitempty"`
	DestLocationID   *string `db:"dest_location_id" json:"destLocationId,omitempty"`
	PrevStatus       string  `db:"prev_status" json:"prevStatus"`
	NextStatus       string  `db:"next_status" json:"nextStatus"`
	Note             string  `db:"note" json:"note"`
}

// Target returns the line's target reference, or an invalid one when
// neither document nor folder is set.
func (l *BatchLine) Target() TargetRef {
	if l.DocumentID != nil {
		return TargetRef{Kind: TargetKindDocument, ID: *l.DocumentID}
	}
	if l.FolderID != nil {
		return TargetRef{Kind: TargetKindFolder, ID: *l.FolderID}
	}
	return TargetRef{}
}

// BatchFilter constrains batch listing queries.
type BatchFilter struct {
	Kind      BatchKind
	Processed *bool
	Limit     int
	Offset    int
}
