package models

import "errors"

var (
	// ErrDataUnavailable means bars for an instrument could not be obtained or were unusable.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrDetectorFailure means a detector could not evaluate a series.
	ErrDetectorFailure = errors.New("detector failure")
	// ErrExternalService means the broker or a market data provider failed.
	ErrExternalService = errors.New("external service failure")
	// ErrPositionNotFound is returned for unknown position ids.
	ErrPositionNotFound = errors.New("position not found")
	// ErrPositionClosed is returned when mutating a closed position.
	ErrPositionClosed = errors.New("position already closed")
	// ErrPositionExists is returned when opening a second OPEN position for an instrument.
	ErrPositionExists = errors.New("open position already exists")
	// ErrSuggestionNotFound is returned for unknown suggestion ids.
	ErrSuggestionNotFound = errors.New("suggestion not found")
	// ErrSuggestionState is returned when a suggestion is no longer pending.
	ErrSuggestionState = errors.New("suggestion not pending")
	// ErrRiskLimit is returned when opening a position would exceed the open position cap.
	ErrRiskLimit = errors.New("risk limit reached")
	// ErrCalibrationRunning is returned when another calibrator pass holds the lock.
	ErrCalibrationRunning = errors.New("calibration already running")
)
