package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/vendorpay-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	SubjectID uuid.UUID
	VendorID  *uuid.UUID
	Role      enums.ActorRole
	JTI       string
}

// AccessTokenClaims represents the typed JWT issued to clients. Vendor tokens
// carry the vendor id they are scoped to; admin tokens leave it empty.
type AccessTokenClaims struct {
	SubjectID uuid.UUID       `json:"subject_id"`
	VendorID  *uuid.UUID      `json:"vendor_id,omitempty"`
	Role      enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}
