package dto

import "github.com/studiodl/archivio-api/internal/models"

// CreateLocationRequest payload for adding a storage unit to the tree.
type CreateLocationRequest struct {
	ParentID *string             `json:"parentId"`
	Type     models.LocationType `json:"type" binding:"required"`
	Prefix   string              `json:"prefix" binding:"required"`
	Name     string              `json:"name"`
}

// UpdateLocationRequest payload for renaming or moving a storage unit.
// Nil fields are left untouched.
type UpdateLocationRequest struct {
	ParentID   *string `json:"parentId"`
	MoveToRoot bool    `json:"moveToRoot"`
	Name       *string `json:"name"`
	Prefix     *string `json:"prefix"`
	Active     *bool   `json:"active"`
}

// LocationNode is a tree-shaped projection of a location and its children.
type LocationNode struct {
	models.Location
	Children []*LocationNode `json:"children,omitempty"`
}
