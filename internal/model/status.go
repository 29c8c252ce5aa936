package model

// Module selects the approval chain configuration a Request is routed through.
type Module string

const (
	ModuleRegularRegistration Module = "Regular Registration"
	ModuleFreebie             Module = "Freebie"
	ModuleListingFee          Module = "Listing Fee"
	ModuleDirectRegistration  Module = "Direct Registration"
)

// Modules lists every workflow type the engine can route.
var Modules = []Module{
	ModuleRegularRegistration,
	ModuleFreebie,
	ModuleListingFee,
	ModuleDirectRegistration,
}

// IsValid reports whether m is a known workflow type.
func (m Module) IsValid() bool {
	for _, known := range Modules {
		if m == known {
			return true
		}
	}
	return false
}

func (m Module) String() string {
	return string(m)
}

// SubjectType tags the business entity whose status a Request governs.
type SubjectType string

const (
	SubjectClient         SubjectType = "Client"
	SubjectFreebieRequest SubjectType = "FreebieRequest"
	SubjectListingFee     SubjectType = "ListingFee"
)

// SubjectTypeOf returns the subject entity a module's requests are attached to.
func SubjectTypeOf(m Module) SubjectType {
	switch m {
	case ModuleFreebie:
		return SubjectFreebieRequest
	case ModuleListingFee:
		return SubjectListingFee
	default:
		return SubjectClient
	}
}

// Presentation-facing status vocabulary.
const (
	StatusUnderReview                = "Under review"
	StatusApproved                   = "Approved"
	StatusRejected                   = "Rejected"
	StatusVoided                     = "Voided"
	StatusReleased                   = "Released"
	StatusPendingRegistration        = "Pending registration"
	StatusForListingFeeApproval      = "For listing fee approval"
	StatusForFreebieApproval         = "For freebie approval"
	StatusForRegularApproval         = "For regular approval"
	StatusDirectRegistrationApproval = "Direct Registration Approval"
	StatusRequested                  = "Requested"
)

// Per-level approval states.
const (
	ApprovalPending  = "Pending"
	ApprovalApproved = "Approved"
	ApprovalRejected = "Rejected"
)

// IsTerminalRequestStatus reports whether no further decisions are accepted.
func IsTerminalRequestStatus(status string) bool {
	switch status {
	case StatusApproved, StatusRejected, StatusVoided:
		return true
	}
	return false
}

// Client origins.
const (
	OriginProspecting = "Prospecting"
	OriginDirect      = "Direct"
)

// User roles.
const (
	RoleAdmin    = "Admin"
	RoleApprover = "Approver"
	RoleCdo      = "Cdo"
)
