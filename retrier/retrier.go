/*
 * PENS - Copyright (C) 2025 Velivolant.
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 2, and only
 * version 2 as published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program; if not, write to the Free Software
 * Foundation, Inc., 59 Temple Place, Suite 330, Boston, MA  02111-1307  USA
 */

// Package retrier is an opt-in retry decorator for the mail core's
// operations. The protocol clients and the token manager never retry
// internally; callers that want retries wrap the call in a Policy.
package retrier

import (
	"time"

	retry "github.com/StirlingMarketingGroup/go-retry"
	log "github.com/sirupsen/logrus"
)

// Policy describes how often and how eagerly an operation is retried.
// The zero value runs the operation exactly once.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	// Values below 1 are treated as 1.
	Attempts int

	// Delay is slept between consecutive attempts.
	Delay time.Duration

	// OnRetry, if set, observes each failed attempt that will be
	// retried. attempt counts from 1.
	OnRetry func(attempt int, err error)
}

// Run invokes op until it succeeds or the attempts are exhausted,
// returning the last error.
func (p Policy) Run(op func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := 0

	return retry.Retry(op, attempts, func(err error) error {
		attempt++
		if attempt < attempts {
			if p.OnRetry != nil {
				p.OnRetry(attempt, err)
			} else {
				log.WithFields(log.Fields{
					"attempt": attempt,
					"error":   err,
				}).Debug("retrier_attempt_failed")
			}
		}
		return nil
	}, func() error {
		if p.Delay > 0 {
			time.Sleep(p.Delay)
		}
		return nil
	})
}
