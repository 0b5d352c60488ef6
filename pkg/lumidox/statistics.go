// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lumidox

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks request/response statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalRequests    uint64
	ValidResponses   uint64
	Timeouts         uint64
	TransportErrors  uint64
	MalformedFrames  uint64
	ChecksumMismatch uint64
	AnomalousValues  uint64
	LastRoundTrip    time.Duration
	TotalRoundTrip   time.Duration

	// Rates (calculated)
	RequestRate float64 // requests/sec
	ErrorRate   float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records one exchange. err is the transport or decode error, if
// any; isTimeout reports whether err was a timeout.
func (s *Statistics) Update(rtt time.Duration, err error, isTimeout bool, validationErrors []ValidationError) {
	s.TotalRequests++
	s.LastUpdateTime = time.Now()

	if err != nil {
		switch {
		case isTimeout:
			s.Timeouts++
		case errors.Is(err, ErrMalformed):
			s.MalformedFrames++
		default:
			s.TransportErrors++
		}
		return
	}

	s.LastRoundTrip = rtt
	s.TotalRoundTrip += rtt

	if len(validationErrors) == 0 {
		s.ValidResponses++
		return
	}

	for _, v := range validationErrors {
		switch v.Type {
		case AnomalyChecksumMismatch:
			s.ChecksumMismatch++
		default:
			s.AnomalousValues++
		}
	}
}

// AverageRoundTrip returns the mean round trip over answered requests
func (s *Statistics) AverageRoundTrip() time.Duration {
	answered := s.TotalRequests - s.Timeouts - s.TransportErrors - s.MalformedFrames
	if answered == 0 {
		return 0
	}
	return s.TotalRoundTrip / time.Duration(answered)
}

// CalculateRates calculates request and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.RequestRate = float64(s.TotalRequests) / elapsed
		errorCount := s.Timeouts + s.TransportErrors + s.MalformedFrames + s.ChecksumMismatch + s.AnomalousValues
		s.ErrorRate = float64(errorCount) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent float64
	if s.TotalRequests > 0 {
		validPercent = float64(s.ValidResponses) * 100.0 / float64(s.TotalRequests)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Requests:        %8d\n", s.TotalRequests)
	result += fmt.Sprintf("Valid Responses: %8d (%.1f%%)\n", s.ValidResponses, validPercent)

	if s.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d\n", s.Timeouts)
	}
	if s.TransportErrors > 0 {
		result += fmt.Sprintf("Transport Errors:%8d\n", s.TransportErrors)
	}
	if s.MalformedFrames > 0 {
		result += fmt.Sprintf("Malformed:       %8d\n", s.MalformedFrames)
	}
	if s.ChecksumMismatch > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d\n", s.ChecksumMismatch)
	}
	if s.AnomalousValues > 0 {
		result += fmt.Sprintf("Anomalous Values:%8d\n", s.AnomalousValues)
	}

	result += fmt.Sprintf("Avg Round Trip:  %8s\n", s.AverageRoundTrip().Round(time.Millisecond))
	result += fmt.Sprintf("Request Rate:    %8.1f req/sec\n", s.RequestRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
