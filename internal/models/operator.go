package models

import "github.com/golang-jwt/jwt/v5"

// Operator roles recognised by route guards.
const (
	RoleAdmin     = "admin"
	RoleArchivist = "archivist"
	RoleClerk     = "clerk"
)

// OperatorClaims is the JWT payload issued by the authentication collaborator.
// This service only consumes it to attribute movements and batches.
type OperatorClaims struct {
	OperatorID string `json:"operator_id"`
	FullName   string `json:"full_name"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// Label returns the display name recorded on ledger rows.
func (c *OperatorClaims) Label() string {
	if c == nil {
		return ""
	}
	if c.FullName != "" {
		return c.FullName
	}
	return c.OperatorID
}
