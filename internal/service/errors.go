package service

import "errors"

// Business errors surfaced by the engine. Handlers map these to HTTP
// statuses; anything else reaching the boundary is an infrastructure
// failure.
var (
	ErrCardNotFound       = errors.New("card not found")
	ErrOwnerNotFound      = errors.New("owner not found")
	ErrCardExpired        = errors.New("card is expired")
	ErrCardBlocked        = errors.New("card is blocked")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrSameCard           = errors.New("cannot transfer to the same card")
	ErrInsufficientFunds  = errors.New("money is not enough to transfer")
	ErrCardConflict       = errors.New("this card has already been created")
	ErrInvalidStatus      = errors.New("status change is not allowed")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
