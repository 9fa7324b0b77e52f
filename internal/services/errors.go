package services

import "errors"

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrInvalidSessionPhase = errors.New("session is not accepting transcript chunks")
	ErrInvalidTransition   = errors.New("invalid session status transition")
	ErrSessionClosed       = errors.New("session is completed")
)
