package enums

import "fmt"

// VerificationStatus is the verdict carried by events, products and results.
type VerificationStatus string

const (
	VerificationStatusPending  VerificationStatus = "pending"
	VerificationStatusVerified VerificationStatus = "verified"
	VerificationStatusFailed   VerificationStatus = "failed"
)

var validVerificationStatuses = []VerificationStatus{
	VerificationStatusPending,
	VerificationStatusVerified,
	VerificationStatusFailed,
}

// String returns the literal string for the status.
func (v VerificationStatus) String() string {
	return string(v)
}

// IsValid reports whether the status is known.
func (v VerificationStatus) IsValid() bool {
	for _, candidate := range validVerificationStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status is a resolved verdict.
func (v VerificationStatus) IsTerminal() bool {
	return v == VerificationStatusVerified || v == VerificationStatusFailed
}

// ParseVerificationStatus converts raw input into a VerificationStatus.
func ParseVerificationStatus(value string) (VerificationStatus, error) {
	for _, candidate := range validVerificationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid verification status %q", value)
}

// VerificationSource records who produced a verification result.
type VerificationSource string

const (
	VerificationSourceWorker   VerificationSource = "worker"
	VerificationSourceCallback VerificationSource = "callback"
)
