package models

// Requests for the desk HTTP endpoints. Defined in domain for consistency and reuse.

type ScreenRequest struct {
	Universe []string `json:"universe" validate:"omitempty,dive,symbol"`
	To       string   `json:"to"`
	Publish  bool     `json:"publish" query:"publish"`
}

type ExecuteSuggestionRequest struct {
	ID        int64   `param:"id" validate:"required,gt=0"`
	FillPrice float64 `json:"fill_price" validate:"gte=0"`
	Quantity  int     `json:"quantity" validate:"gte=0"`
}

type SkipSuggestionRequest struct {
	ID    int64  `param:"id" validate:"required,gt=0"`
	Notes string `json:"notes"`
}

type ClosePositionRequest struct {
	ID        int64   `param:"id" validate:"required,gt=0"`
	ExitPrice float64 `json:"exit_price" validate:"required,gt=0"`
	Reason    string  `json:"reason" default:"MANUAL" validate:"exit_reason"`
}

type AdjustPositionRequest struct {
	ID    int64   `param:"id" validate:"required,gt=0"`
	Price float64 `json:"price" validate:"required,gt=0"`
}

type ExpireSuggestionsRequest struct {
	OlderThanDays int `json:"older_than_days" query:"older_than_days" default:"3" validate:"gte=1,lte=90"`
}
