package repository

import (
	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/errs"
	"github.com/lalith-99/huddle/internal/models"
)

// CheckJoin reports why userID cannot join ch, or nil if it can.
// A nil ch means the channel does not exist.
func CheckJoin(ch *models.Channel, userID uuid.UUID) error {
	if ch == nil {
		return errs.ErrNotFound
	}
	if ch.IsMember(userID) {
		return errs.ErrAlreadyMember
	}
	return nil
}

// CheckLeave reports why userID cannot leave ch, or nil if it can.
func CheckLeave(ch *models.Channel, userID uuid.UUID) error {
	if ch == nil {
		return errs.ErrNotFound
	}
	if !ch.IsMember(userID) {
		return errs.ErrNotMember
	}
	return nil
}

// CheckPromote reports why actorID cannot make targetID an admin of ch.
// Checks run in a fixed order: existence, actor rights, target membership,
// target already admin.
func CheckPromote(ch *models.Channel, actorID, targetID uuid.UUID) error {
	if ch == nil {
		return errs.ErrNotFound
	}
	if !ch.IsAdmin(actorID) {
		return errs.ErrPermission
	}
	if !ch.IsMember(targetID) {
		return errs.ErrNotMember
	}
	if ch.IsAdmin(targetID) {
		return errs.ErrAlreadyAdmin
	}
	return nil
}
