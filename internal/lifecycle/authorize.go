package lifecycle

import (
	"github.com/campus-gigs/backend/internal/collection"
	"github.com/campus-gigs/backend/internal/models"
)

// Authorize re-checks an update received by the store against the stored gig,
// for a caller identified by actorID. It returns the action the update
// performs and the write the store should apply.
func Authorize(current models.Gig, update collection.Fields, actorID string) (Action, Write, error) {
	for k := range update {
		switch k {
		case models.FieldStatus, models.FieldClaimedBy, models.FieldClaimedByName:
		default:
			return "", Write{}, refuse(ErrForbidden, "update", current.ID, "field %q is immutable", k)
		}
	}
	status, _ := update[models.FieldStatus].(string)
	switch models.Status(status) {
	case models.StatusInProgress:
		claimedBy, _ := update[models.FieldClaimedBy].(string)
		if claimedBy != actorID {
			return ActionClaim, Write{}, refuse(ErrForbidden, ActionClaim, current.ID, "claimedBy must be the caller")
		}
		name, _ := update[models.FieldClaimedByName].(string)
		w, err := Decide(current, ActionClaim, Actor{ID: actorID, Name: name})
		return ActionClaim, w, err
	case models.StatusCompleted:
		if len(update) != 1 {
			return ActionComplete, Write{}, refuse(ErrForbidden, ActionComplete, current.ID, "complete only sets status")
		}
		w, err := Decide(current, ActionComplete, Actor{ID: actorID})
		return ActionComplete, w, err
	}
	return "", Write{}, refuse(ErrForbidden, "update", current.ID, "status %q is not a forward transition", status)
}
