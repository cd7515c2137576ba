// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// requestValidate is shared by every request type in this package.
var requestValidate = validator.New()

// Validator exposes the package validator so other packages validate with the
// same rule set.
func Validator() *validator.Validate {
	return requestValidate
}

// CreateTaskRequest is the body of POST /v1/users/:userId/tasks.
type CreateTaskRequest struct {
	Title             string     `json:"title" validate:"required,max=256"`
	EstimatedDuration int        `json:"estimated_duration" validate:"gte=0,lte=1440"`
	Complexity        Complexity `json:"complexity" validate:"omitempty,oneof=low medium high"`
}

func (r *CreateTaskRequest) Validate() error {
	return requestValidate.Struct(r)
}

// EnsureDefaults fills optional fields.
func (r *CreateTaskRequest) EnsureDefaults() {
	if r.Complexity == "" {
		r.Complexity = ComplexityMedium
	}
}

// ReportStateRequest is the body of PUT /v1/users/:userId/state.
type ReportStateRequest struct {
	Energy     *int `json:"energy" validate:"required,gte=0,lte=10"`
	Focus      *int `json:"focus" validate:"required,gte=0,lte=100"`
	Motivation *int `json:"motivation" validate:"required,gte=0,lte=10"`
	Stress     *int `json:"stress" validate:"required,gte=0,lte=10"`
}

func (r *ReportStateRequest) Validate() error {
	return requestValidate.Struct(r)
}

// State converts a validated request into a ProductivityState.
func (r *ReportStateRequest) State() ProductivityState {
	return ProductivityState{
		Energy:     *r.Energy,
		Focus:      *r.Focus,
		Motivation: *r.Motivation,
		Stress:     *r.Stress,
	}
}

// ForceResumeRequest is the optional body of the force-resume endpoint.
// Zero FixedMinutes selects the configured default.
type ForceResumeRequest struct {
	FixedMinutes int `json:"fixed_minutes" validate:"gte=0,lte=240"`
}

func (r *ForceResumeRequest) Validate() error {
	return requestValidate.Struct(r)
}

// RateSessionRequest is the body of POST /v1/sessions/:sessionId/rating.
type RateSessionRequest struct {
	Rating int `json:"rating" validate:"required,gte=1,lte=5"`
}

func (r *RateSessionRequest) Validate() error {
	return requestValidate.Struct(r)
}
