package model

import (
	"fmt"
	"slices"
	"strings"
)

type statusTransition struct {
	from                  []ConventionStatus
	roles                 []Role
	topic                 TopicDef[ConventionPayload]
	clearSignatures       bool
	requiresJustification bool
}

var (
	reviewRoles = []Role{RoleCounsellor, RoleValidator, RoleBackOffice}

	beforeValidation = []ConventionStatus{
		ConventionStatusReadyToSign,
		ConventionStatusPartiallySigned,
		ConventionStatusInReview,
		ConventionStatusAcceptedByCounsellor,
	}
)

// PARTIALLY_SIGNED and IN_REVIEW are absent on purpose: only Sign reaches them.
var statusTransitions = map[ConventionStatus]statusTransition{
	ConventionStatusReadyToSign: {
		from:            []ConventionStatus{ConventionStatusDraft},
		roles:           reviewRoles,
		topic:           ConventionReadyToSign,
		clearSignatures: true,
	},
	ConventionStatusAcceptedByCounsellor: {
		from:  []ConventionStatus{ConventionStatusInReview},
		roles: []Role{RoleCounsellor},
		topic: ConventionAcceptedByCounsellor,
	},
	ConventionStatusAcceptedByValidator: {
		from:  []ConventionStatus{ConventionStatusInReview, ConventionStatusAcceptedByCounsellor},
		roles: []Role{RoleValidator, RoleBackOffice},
		topic: ConventionAcceptedByValidator,
	},
	ConventionStatusValidated: {
		from:  []ConventionStatus{ConventionStatusAcceptedByValidator},
		roles: []Role{RoleBackOffice},
		topic: ConventionValidated,
	},
	ConventionStatusRejected: {
		from:                  beforeValidation,
		roles:                 reviewRoles,
		topic:                 ConventionRejected,
		requiresJustification: true,
	},
	ConventionStatusCancelled: {
		from:                  []ConventionStatus{ConventionStatusAcceptedByValidator, ConventionStatusValidated},
		roles:                 reviewRoles,
		topic:                 ConventionCancelled,
		requiresJustification: true,
	},
	ConventionStatusDeprecated: {
		from:                  beforeValidation,
		roles:                 reviewRoles,
		topic:                 ConventionDeprecated,
		requiresJustification: true,
	},
	ConventionStatusDraft: {
		from: beforeValidation,
		roles: append([]Role{
			RoleBeneficiary,
			RoleBeneficiaryRepresentative,
			RoleLegalRepresentative,
			RoleBeneficiaryCurrentEmployer,
			RoleEstablishmentRepresentative,
			RoleEstablishment,
		}, reviewRoles...),
		topic:                 ConventionRequiresModification,
		clearSignatures:       true,
		requiresJustification: true,
	},
}

// CanTransitionTo reports whether the table allows moving from s to next, ignoring roles.
func (s ConventionStatus) CanTransitionTo(next ConventionStatus) bool {
	transition, ok := statusTransitions[next]

	return ok && slices.Contains(transition.from, s)
}

// TransitionTo moves the convention to target on behalf of role and returns the
// topic of the event that records the change.
func (c *Convention) TransitionTo(
	target ConventionStatus, role Role, justification string,
) (TopicDef[ConventionPayload], error) {
	transition, ok := statusTransitions[target]
	if !ok {
		return TopicDef[ConventionPayload]{}, fmt.Errorf("%w: status %q cannot be set directly", ErrBadRequest, target)
	}

	if !slices.Contains(transition.roles, role) {
		return TopicDef[ConventionPayload]{}, fmt.Errorf("%w: role %q is not allowed to go to status %s",
			ErrForbidden, role, target)
	}

	if !c.Status.CanTransitionTo(target) {
		return TopicDef[ConventionPayload]{}, fmt.Errorf("%w: cannot go from status %s to %s",
			ErrBadRequest, c.Status, target)
	}

	justification = strings.TrimSpace(justification)
	if transition.requiresJustification && justification == "" {
		return TopicDef[ConventionPayload]{}, fmt.Errorf("%w: a justification is required to go to status %s",
			ErrBadRequest, target)
	}

	if transition.clearSignatures {
		c.Signatories.ClearSignatures()
	}

	c.Status = target
	c.StatusJustification = justification

	return transition.topic, nil
}
