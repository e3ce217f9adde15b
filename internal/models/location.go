package models

import "time"

// LocationType enumerates the physical storage unit kinds.
type LocationType string

const (
	LocationTypeOffice       LocationType = "OFFICE"
	LocationTypeRoom         LocationType = "ROOM"
	LocationTypeShelving     LocationType = "SHELVING"
	LocationTypeCabinet      LocationType = "CABINET"
	LocationTypeDoor         LocationType = "DOOR"
	LocationTypeShelf        LocationType = "SHELF"
	LocationTypeContainer    LocationType = "CONTAINER"
	LocationTypeFolderHolder LocationType = "FOLDER_HOLDER"
)

// allowedChildren is the fixed containment table: which unit types may sit
// directly under each parent type. Root nodes must be offices.
var allowedChildren = map[LocationType][]LocationType{
	LocationTypeOffice:       {LocationTypeRoom},
	LocationTypeRoom:         {LocationTypeShelving, LocationTypeCabinet},
	LocationTypeShelving:     {LocationTypeShelf},
	LocationTypeCabinet:      {LocationTypeDoor, LocationTypeShelf, LocationTypeContainer},
	LocationTypeDoor:         {LocationTypeShelf},
	LocationTypeShelf:        {LocationTypeContainer, LocationTypeFolderHolder},
	LocationTypeContainer:    {LocationTypeFolderHolder},
	LocationTypeFolderHolder: {},
}

// AllowedChildren returns the child types permitted under the given type.
func AllowedChildren(t LocationType) []LocationType {
	children, ok := allowedChildren[t]
	if !ok {
		return nil
	}
	out := make([]LocationType, len(children))
	copy(out, children)
	return out
}

// IsValidLocationType reports whether t is a known unit type.
func IsValidLocationType(t LocationType) bool {
	_, ok := allowedChildren[t]
	return ok
}

// CanContain reports whether a child of the given type may be placed under
// a parent of the given type.
func CanContain(parent, child LocationType) bool {
	for _, allowed := range allowedChildren[parent] {
		if allowed == child {
			return true
		}
	}
	return false
}

// Location is a node in the physical storage tree. Code and FullPath are
// derived columns recomputed on every write, not source of truth.
type Location struct {
	ID        string       `db:"id" json:"id"`
	Type      LocationType `db:"type" json:"type"`
	ParentID  *string      `db:"parent_id" json:"parentId,omitempty"`
	Name      string       `db:"name" json:"name"`
	Prefix    string       `db:"prefix" json:"prefix"`
	Sequence  int          `db:"sequence" json:"sequence"`
	Code      string       `db:"code" json:"code"`
	FullPath  string       `db:"full_path" json:"fullPath"`
	Active    bool         `db:"active" json:"active"`
	CreatedAt time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time    `db:"updated_at" json:"updatedAt"`
}
