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

import "time"

// ProductivityState is the user's self-reported condition.
type ProductivityState struct {
	Energy     int       `json:"energy" yaml:"energy" validate:"gte=0,lte=10"`
	Focus      int       `json:"focus" yaml:"focus" validate:"gte=0,lte=100"`
	Motivation int       `json:"motivation" yaml:"motivation" validate:"gte=0,lte=10"`
	Stress     int       `json:"stress" yaml:"stress" validate:"gte=0,lte=10"`
	ReportedAt time.Time `json:"reported_at,omitempty" yaml:"-"`
}
