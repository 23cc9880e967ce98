package models

import "errors"

var (
	ErrEventNotFound           = errors.New("event not found")
	ErrCapacityExceeded        = errors.New("event is at full capacity")
	ErrAlreadyJoined           = errors.New("you have already joined this event")
	ErrNotJoined               = errors.New("you have not joined this event")
	ErrUnauthorized            = errors.New("authentication required")
	ErrForbidden               = errors.New("only the event creator can do this")
	ErrStorageConflict         = errors.New("storage conflict, please retry")
	ErrInvalidInput            = errors.New("invalid input")
	ErrCapacityBelowAttendance = errors.New("capacity cannot be lower than the current number of attendees")
	ErrUserNotFound            = errors.New("user not found")
	ErrEmailTaken              = errors.New("email already registered")
	ErrInvalidCredentials      = errors.New("invalid credentials")
)
