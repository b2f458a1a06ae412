// Package identity defines the verified user record obtained from the
// identity provider after code exchange.
package identity

// KYCStatus is reported by the wallet collaborator, never by the provider.
type KYCStatus string

const (
	KYCPending  KYCStatus = "pending"
	KYCApproved KYCStatus = "approved"
	KYCRejected KYCStatus = "rejected"
)

// ExternalIdentity is the provider-issued user record. It is produced by
// the code-exchange step and never mutated afterwards.
type ExternalIdentity struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Picture       string    `json:"picture,omitempty"`
	VerifiedEmail bool      `json:"verified_email"`
	KYCStatus     KYCStatus `json:"kycStatus,omitempty"`
}
