/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package chain

import "errors"

var (
	ErrAlreadyStarted       = errors.New("chain already started")
	ErrChainComplete        = errors.New("chain is already complete")
	ErrDuplicateID          = errors.New("duplicate participant id")
	ErrEmptyRoster          = errors.New("no participants found")
	ErrNoAvailableCandidate = errors.New("no available participant to select")
	ErrNotEligible          = errors.New("participant cannot act right now")
	ErrNotStarted           = errors.New("chain has not been started")
	ErrNotYourTurn          = errors.New("it is not this participant's turn")
	ErrRosterTooSmall       = errors.New("at least two participants are required")
	ErrUnknownParticipant   = errors.New("participant is not on the roster")
)
