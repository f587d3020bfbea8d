package policy

// requiredCapability maps each lifecycle action to the capability that
// gates it.
var requiredCapability = map[Action]Capability{
	ActionCreate:  CapCreate,
	ActionUpdate:  CapEditOwn,
	ActionSubmit:  CapSubmit,
	ActionApprove: CapApprove,
	ActionDelete:  CapDeleteDraft,
}

// ownershipGated lists the actions that compare resource owner to actor.
var ownershipGated = map[Action]bool{
	ActionUpdate: true,
	ActionSubmit: true,
	ActionDelete: true,
}

// Authorize decides whether the actor may perform the action on the SOP
// snapshot. Checks run in a fixed order so denial reasons are
// deterministic: role, then ownership, then status. sop may be nil for
// ActionCreate.
func Authorize(actor Actor, action Action, sop *SOP) error {
	caps, err := CapabilitiesOf(actor.Role)
	if err != nil {
		return err
	}

	required, ok := requiredCapability[action]
	if !ok {
		return ErrInsufficientRole
	}
	if !caps[required] {
		return ErrInsufficientRole
	}

	if sop == nil {
		if action == ActionCreate {
			return nil
		}
		return ErrInvalidTransition
	}

	editAny := caps[CapEditAny]
	if ownershipGated[action] && !editAny && sop.OwnerID != actor.ID {
		return ErrNotOwner
	}

	return checkTransition(action, sop.Status, editAny)
}
