package service

import "SwingDesk/internal/domain/models"

// Detector evaluates a bar series and returns at most one signal for its last bar.
// Implementations are pure: they never mutate the input and return nil for
// series too short to evaluate.
type Detector interface {
	ID() string
	Evaluate(series []models.Candle) *models.Signal
}
