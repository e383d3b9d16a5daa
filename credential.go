package flows

// UpdateStatus tags a CredentialUpdateOutcome
type UpdateStatus = string

const (
	// UpdateAccepted means the credential was durably updated
	UpdateAccepted UpdateStatus = "accepted"
	// UpdateRejected means the store refused the new secret for policy reasons
	UpdateRejected UpdateStatus = "rejected"
	// UpdateInvalidAccount means the subject vanished between token issuance and the update
	UpdateInvalidAccount UpdateStatus = "invalid-account"
	// UpdateInvalidToken means no valid authorization was present for the update
	UpdateInvalidToken UpdateStatus = "invalid-token"
)

// RejectionReason is a structured reason a credential store refused an update
type RejectionReason = string

const (
	// ReasonPasswordTooShort rejects secrets under the configured length
	ReasonPasswordTooShort RejectionReason = "password.too-short"
	// ReasonPasswordTooWeak rejects secrets failing the character class policy
	ReasonPasswordTooWeak RejectionReason = "password.too-weak"
	// ReasonPasswordMatchesIdentifier rejects secrets equal to the username or email
	ReasonPasswordMatchesIdentifier RejectionReason = "password.matches-identifier"
	// ReasonSubjectNotFound means the store has no credential record for the
	// subject; it must never reach the end user
	ReasonSubjectNotFound RejectionReason = "subject.credentials-not-found"
	// ReasonRejectedByDataSource is a storage level refusal that would leak
	// backend details; it must never reach the end user
	ReasonRejectedByDataSource RejectionReason = "password.rejected-by-data-source"
)

// CredentialUpdateOutcome is the tagged result of a credential update.
// Reasons is ordered and only populated for rejections.
type CredentialUpdateOutcome struct {
	Status  UpdateStatus      `json:"status"`
	Reasons []RejectionReason `json:"reasons,omitempty"`
}

// Accepted reports whether the update durably succeeded.
func (o *CredentialUpdateOutcome) Accepted() bool {
	return o != nil && o.Status == UpdateAccepted
}

// FilteredReasons returns the rejection reasons safe to surface: reasons
// revealing whether the subject exists are dropped, genuine policy
// violations are kept in order.
func (o *CredentialUpdateOutcome) FilteredReasons() []RejectionReason {
	if o == nil {
		return nil
	}
	return FilterRejectionReasons(o.Reasons)
}

// OutcomeAccepted builds the success outcome.
func OutcomeAccepted() *CredentialUpdateOutcome {
	return &CredentialUpdateOutcome{Status: UpdateAccepted}
}

// OutcomeRejected builds a rejection outcome carrying the store's reasons.
func OutcomeRejected(reasons ...RejectionReason) *CredentialUpdateOutcome {
	return &CredentialUpdateOutcome{Status: UpdateRejected, Reasons: reasons}
}

// OutcomeInvalidAccount builds the vanished subject outcome.
func OutcomeInvalidAccount() *CredentialUpdateOutcome {
	return &CredentialUpdateOutcome{Status: UpdateInvalidAccount}
}

// OutcomeInvalidToken builds the missing authorization outcome.
func OutcomeInvalidToken() *CredentialUpdateOutcome {
	return &CredentialUpdateOutcome{Status: UpdateInvalidToken}
}

// FilterRejectionReasons drops reasons whose meaning is "no such credential
// record" before the list is exposed, leaving only policy violations the
// user can act on.
func FilterRejectionReasons(reasons []RejectionReason) []RejectionReason {
	if len(reasons) == 0 {
		return nil
	}

	filtered := make([]RejectionReason, 0, len(reasons))
	for _, reason := range reasons {
		switch reason {
		case ReasonSubjectNotFound, ReasonRejectedByDataSource:
			continue
		default:
			filtered = append(filtered, reason)
		}
	}

	if len(filtered) == 0 {
		return nil
	}
	return filtered
}
