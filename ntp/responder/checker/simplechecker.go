/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package checker implements the internal aliveness check of the responder.
The server uses it to decide whether it is still healthy enough to keep going.
*/
package checker

import (
	"errors"
	"sync/atomic"
)

var (
	errWrongAmountListeners = errors.New("wrong amount of listeners is up")
	errWrongAmountWorkers   = errors.New("wrong amount of workers is up")
)

// SimpleChecker tracks how many listeners and workers are actually running
// against how many are supposed to be.
type SimpleChecker struct {
	// ExpectedListeners is number of listeners we expect to run
	ExpectedListeners int64
	realListeners     int64

	// ExpectedWorkers is number of workers we expect to run
	ExpectedWorkers int64
	realWorkers     int64
}

// IncListeners thread-safely increases number of listeners to monitor
func (s *SimpleChecker) IncListeners() {
	atomic.AddInt64(&s.realListeners, 1)
}

// DecListeners thread-safely decreases number of listeners to monitor
func (s *SimpleChecker) DecListeners() {
	atomic.AddInt64(&s.realListeners, -1)
}

// IncWorkers thread-safely increases number of workers to monitor
func (s *SimpleChecker) IncWorkers() {
	atomic.AddInt64(&s.realWorkers, 1)
}

// DecWorkers thread-safely decreases number of workers to monitor
func (s *SimpleChecker) DecWorkers() {
	atomic.AddInt64(&s.realWorkers, -1)
}

// Check performs basic validations that responder is alive
func (s *SimpleChecker) Check() error {
	if err := s.checkListeners(); err != nil {
		return err
	}
	return s.checkWorkers()
}

func (s *SimpleChecker) checkListeners() error {
	if s.ExpectedListeners != atomic.LoadInt64(&s.realListeners) {
		return errWrongAmountListeners
	}
	return nil
}

func (s *SimpleChecker) checkWorkers() error {
	if s.ExpectedWorkers != atomic.LoadInt64(&s.realWorkers) {
		return errWrongAmountWorkers
	}
	return nil
}
