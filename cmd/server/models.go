package main

import (
	"errors"
	"fmt"
)

// API Request and Response Models with Swagger annotations

// PredictRequest represents the request body for a prediction
type PredictRequest struct {
	Features map[string]any `json:"features" binding:"required"`
	Model    string         `json:"model,omitempty" example:"baseline"`
} // @name PredictRequest

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"prediction failed"`
	Details string `json:"details,omitempty" example:"schema error: attribute \"Age at enrollment\" is required"`
} // @name ErrorResponse

// HealthResponse represents the health check response
type HealthResponse struct {
	Status            string           `json:"status" example:"healthy"`
	Error             string           `json:"error,omitempty"`
	Models            []string         `json:"models" example:"baseline,mitigated"`
	UnknownSelector   string           `json:"unknown_selector,omitempty" example:"fallback"`
	SchemaFingerprint string           `json:"schema_fingerprint,omitempty" example:"9f2c41d07a3be815"`
	Counters          map[string]int64 `json:"counters,omitempty"`
} // @name HealthResponse

var errNoFeatures = errors.New("no features provided")

// parsePredictRequest accepts the wrapped form or a bare attribute map. A
// string "model" key in a bare map is taken as the selector.
func parsePredictRequest(body map[string]any) (PredictRequest, error) {
	var req PredictRequest
	if len(body) == 0 {
		return req, errNoFeatures
	}

	if model, ok := body["model"]; ok {
		name, isString := model.(string)
		if !isString {
			return req, fmt.Errorf("model must be a string, got %T", model)
		}
		req.Model = name
	}

	if raw, wrapped := body["features"]; wrapped {
		feats, ok := raw.(map[string]any)
		if !ok || len(feats) == 0 {
			return req, errNoFeatures
		}
		req.Features = feats
		return req, nil
	}

	feats := make(map[string]any, len(body))
	for k, v := range body {
		if k == "model" {
			continue
		}
		feats[k] = v
	}
	if len(feats) == 0 {
		return req, errNoFeatures
	}
	req.Features = feats
	return req, nil
}
