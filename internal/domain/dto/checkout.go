package dto

import (
	"github.com/google/uuid"
)

// SessionCriteria identifies the checkout a purchase session should cover.
// PurchaseID takes priority over ProductID when both resolve.
type SessionCriteria struct {
	OrganizationID uuid.UUID
	VariantID      uuid.UUID
	ProductID      uuid.UUID
	PurchaseID     *uuid.UUID
	CustomerID     *uuid.UUID
	CustomerEmail  *string
	Quantity       int
	Livemode       bool
}

// SessionPatch carries the mutable fields of an open purchase session.
type SessionPatch struct {
	Quantity      *int
	CustomerEmail *string
	CustomerID    *uuid.UUID
}
