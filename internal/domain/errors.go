package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrRoomNotFound is returned when a room code does not resolve to a session.
	ErrRoomNotFound = errors.New("room code not found")
	// ErrSessionEnded is returned for actions against a terminated session.
	ErrSessionEnded = errors.New("session already ended")
	// ErrAlreadyAnswered is returned when a second answer is submitted for the same question.
	ErrAlreadyAnswered = errors.New("answer already submitted for this question")
	// ErrSubmissionClosed is returned when answering outside an active question window.
	ErrSubmissionClosed = errors.New("answer submission closed")
	// ErrChannelClosed is returned when sending on a closed session channel.
	ErrChannelClosed = errors.New("session channel closed")
)
