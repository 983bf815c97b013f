package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ConventionStatus represents a step of the convention lifecycle.
type ConventionStatus string

const (
	ConventionStatusDraft                ConventionStatus = "DRAFT"
	ConventionStatusReadyToSign          ConventionStatus = "READY_TO_SIGN"
	ConventionStatusPartiallySigned      ConventionStatus = "PARTIALLY_SIGNED"
	ConventionStatusInReview             ConventionStatus = "IN_REVIEW"
	ConventionStatusAcceptedByCounsellor ConventionStatus = "ACCEPTED_BY_COUNSELLOR"
	ConventionStatusAcceptedByValidator  ConventionStatus = "ACCEPTED_BY_VALIDATOR"
	ConventionStatusValidated            ConventionStatus = "VALIDATED"
	ConventionStatusRejected             ConventionStatus = "REJECTED"
	ConventionStatusCancelled            ConventionStatus = "CANCELLED"
	ConventionStatusDeprecated           ConventionStatus = "DEPRECATED"
)

// ConventionStatusFullySigned is the status reached once every present signatory has signed.
const ConventionStatusFullySigned = ConventionStatusInReview

// IsValid reports whether the status is part of the convention lifecycle.
func (s ConventionStatus) IsValid() bool {
	switch s {
	case ConventionStatusDraft, ConventionStatusReadyToSign, ConventionStatusPartiallySigned,
		ConventionStatusInReview, ConventionStatusAcceptedByCounsellor, ConventionStatusAcceptedByValidator,
		ConventionStatusValidated, ConventionStatusRejected, ConventionStatusCancelled, ConventionStatusDeprecated:
		return true
	default:
		return false
	}
}

// Role is the role of the actor performing an operation on a convention.
type Role string

const (
	RoleBeneficiary                 Role = "beneficiary"
	RoleBeneficiaryRepresentative   Role = "beneficiary-representative"
	RoleLegalRepresentative         Role = "legal-representative"
	RoleBeneficiaryCurrentEmployer  Role = "beneficiary-current-employer"
	RoleEstablishmentRepresentative Role = "establishment-representative"
	RoleEstablishment               Role = "establishment"
	RoleCounsellor                  Role = "counsellor"
	RoleValidator                   Role = "validator"
	RoleBackOffice                  Role = "back-office"
)

// SignatoryKey names a signatory slot of a convention.
type SignatoryKey string

const (
	SignatoryBeneficiary                 SignatoryKey = "beneficiary"
	SignatoryEstablishmentRepresentative SignatoryKey = "establishmentRepresentative"
	SignatoryBeneficiaryRepresentative   SignatoryKey = "beneficiaryRepresentative"
	SignatoryBeneficiaryCurrentEmployer  SignatoryKey = "beneficiaryCurrentEmployer"
)

// SignatoryKey returns the slot signed by the role, if the role is a signatory role.
func (r Role) SignatoryKey() (SignatoryKey, bool) {
	switch r {
	case RoleBeneficiary:
		return SignatoryBeneficiary, true
	case RoleBeneficiaryRepresentative, RoleLegalRepresentative:
		return SignatoryBeneficiaryRepresentative, true
	case RoleBeneficiaryCurrentEmployer:
		return SignatoryBeneficiaryCurrentEmployer, true
	case RoleEstablishmentRepresentative, RoleEstablishment:
		return SignatoryEstablishmentRepresentative, true
	default:
		return "", false
	}
}

// Signatory is a party that has to sign a convention.
type Signatory struct {
	Role      Role       `json:"role"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone,omitempty"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	SignedAt  *time.Time `json:"signedAt,omitempty"`
}

// HasSigned reports whether the signatory has signed.
func (s *Signatory) HasSigned() bool {
	return s != nil && s.SignedAt != nil
}

// Signatories holds the fixed signatory slots. Optional slots are nil when absent.
type Signatories struct {
	Beneficiary                 Signatory  `json:"beneficiary"`
	EstablishmentRepresentative Signatory  `json:"establishmentRepresentative"`
	BeneficiaryRepresentative   *Signatory `json:"beneficiaryRepresentative,omitempty"`
	BeneficiaryCurrentEmployer  *Signatory `json:"beneficiaryCurrentEmployer,omitempty"`
}

// Get returns the signatory of a slot, or nil when the slot is absent.
func (s *Signatories) Get(key SignatoryKey) *Signatory {
	switch key {
	case SignatoryBeneficiary:
		return &s.Beneficiary
	case SignatoryEstablishmentRepresentative:
		return &s.EstablishmentRepresentative
	case SignatoryBeneficiaryRepresentative:
		return s.BeneficiaryRepresentative
	case SignatoryBeneficiaryCurrentEmployer:
		return s.BeneficiaryCurrentEmployer
	default:
		return nil
	}
}

// Present returns the signatories that are part of the convention.
func (s *Signatories) Present() []*Signatory {
	present := []*Signatory{&s.Beneficiary, &s.EstablishmentRepresentative}
	if s.BeneficiaryRepresentative != nil {
		present = append(present, s.BeneficiaryRepresentative)
	}

	if s.BeneficiaryCurrentEmployer != nil {
		present = append(present, s.BeneficiaryCurrentEmployer)
	}

	return present
}

// AllSigned reports whether every present signatory has signed.
func (s *Signatories) AllSigned() bool {
	for _, signatory := range s.Present() {
		if !signatory.HasSigned() {
			return false
		}
	}

	return true
}

// ClearSignatures removes every signature.
func (s *Signatories) ClearSignatures() {
	for _, signatory := range s.Present() {
		signatory.SignedAt = nil
	}
}

// Schedule summarizes the immersion timetable.
type Schedule struct {
	TotalHours float64 `json:"totalHours"`
	WorkedDays int     `json:"workedDays"`
	Summary    string  `json:"summary,omitempty"`
}

// Convention is the signable immersion document.
type Convention struct {
	ID                  string           `json:"id"`
	Status              ConventionStatus `json:"status"`
	StatusJustification string           `json:"statusJustification,omitempty"`
	AgencyID            string           `json:"agencyId"`
	DateSubmission      time.Time        `json:"dateSubmission"`
	DateStart           time.Time        `json:"dateStart"`
	DateEnd             time.Time        `json:"dateEnd"`
	Schedule            Schedule         `json:"schedule"`
	Signatories         Signatories      `json:"signatories"`
}

// Validate checks the mandatory fields of a convention.
func (c *Convention) Validate() error {
	switch {
	case strings.TrimSpace(c.ID) == "":
		return fmt.Errorf("%w: id is required", ErrInvalidConvention)
	case !IsUUID(c.ID):
		return fmt.Errorf("%w: id %q is not a uuid", ErrInvalidConvention, c.ID)
	case !c.Status.IsValid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidConvention, c.Status)
	case strings.TrimSpace(c.AgencyID) == "":
		return fmt.Errorf("%w: agency id is required", ErrInvalidConvention)
	case c.DateEnd.Before(c.DateStart):
		return fmt.Errorf("%w: date end is before date start", ErrInvalidConvention)
	case strings.TrimSpace(c.Signatories.Beneficiary.Email) == "":
		return fmt.Errorf("%w: beneficiary email is required", ErrInvalidConvention)
	case strings.TrimSpace(c.Signatories.EstablishmentRepresentative.Email) == "":
		return fmt.Errorf("%w: establishment representative email is required", ErrInvalidConvention)
	}

	return nil
}

// Sign records the signature of role at signedAt and recomputes the status.
func (c *Convention) Sign(role Role, signedAt time.Time) error {
	key, ok := role.SignatoryKey()
	if !ok {
		return fmt.Errorf("%w: role %q is not allowed to sign a convention", ErrForbidden, role)
	}

	if c.Status != ConventionStatusReadyToSign && c.Status != ConventionStatusPartiallySigned {
		return fmt.Errorf("%w: cannot go from status %s to %s",
			ErrBadRequest, c.Status, ConventionStatusPartiallySigned)
	}

	signatory := c.Signatories.Get(key)
	if signatory == nil {
		return fmt.Errorf("%w: convention %s has no %s signatory", ErrForbidden, c.ID, key)
	}

	at := signedAt
	signatory.SignedAt = &at

	if c.Signatories.AllSigned() {
		c.Status = ConventionStatusFullySigned
	} else {
		c.Status = ConventionStatusPartiallySigned
	}

	return nil
}

// IsFullySigned reports whether the convention reached the fully signed stage.
func (c *Convention) IsFullySigned() bool {
	return c.Signatories.AllSigned()
}

// Clone returns a deep copy of the convention.
func (c Convention) Clone() Convention {
	clone := c
	clone.Signatories.Beneficiary = cloneSignatory(c.Signatories.Beneficiary)
	clone.Signatories.EstablishmentRepresentative = cloneSignatory(c.Signatories.EstablishmentRepresentative)

	if c.Signatories.BeneficiaryRepresentative != nil {
		representative := cloneSignatory(*c.Signatories.BeneficiaryRepresentative)
		clone.Signatories.BeneficiaryRepresentative = &representative
	}

	if c.Signatories.BeneficiaryCurrentEmployer != nil {
		employer := cloneSignatory(*c.Signatories.BeneficiaryCurrentEmployer)
		clone.Signatories.BeneficiaryCurrentEmployer = &employer
	}

	return clone
}

func cloneSignatory(s Signatory) Signatory {
	if s.SignedAt != nil {
		signedAt := *s.SignedAt
		s.SignedAt = &signedAt
	}

	return s
}

// IsUUID reports whether id is a UUID in its canonical hyphenated form.
func IsUUID(id string) bool {
	parsed, err := uuid.Parse(id)

	return err == nil && parsed.String() == strings.ToLower(id)
}
