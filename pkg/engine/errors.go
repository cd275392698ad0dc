// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

import (
	"errors"
	"fmt"
)

// ApologyMessage is what the user sees when a turn fails.
const ApologyMessage = "Sorry, something went wrong on our side. Please try again later."

var (
	// ErrNotSuspended is wrapped by InvalidStateError when a message is
	// posted to a session that is not waiting for input.
	ErrNotSuspended = errors.New("session is not waiting for input")

	// ErrAlreadyStarted is wrapped by InvalidStateError when Begin gets a
	// session that has run before.
	ErrAlreadyStarted = errors.New("session has already started")

	ErrStepLimit      = errors.New("step limit exceeded")
	ErrDanglingNode   = errors.New("node not found in graph")
	ErrNoBranch       = errors.New("no branch matched and no default branch")
	ErrNotInteractive = errors.New("session suspended at a node that cannot take input")
)

// InvalidStateError reports a caller protocol violation. The session is
// left as it was.
type InvalidStateError struct {
	SessionID string
	Status    string
	Err       error
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state for session %s (status %s): %v", e.SessionID, e.Status, e.Err)
}

func (e *InvalidStateError) Unwrap() error { return e.Err }

// ExternalServiceError wraps a webhook, LLM or knowledge failure. The
// engine recovers from it locally and never returns it.
type ExternalServiceError struct {
	Service string
	NodeID  string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s failed at node %s: %v", e.Service, e.NodeID, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// ExecutionError is a runtime inconsistency: a dangling node reference,
// the step bound, or a conditional without a way out. The session is
// marked errored and the user receives ApologyMessage.
type ExecutionError struct {
	SessionID string
	NodeID    string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed for session %s at node %s: %v", e.SessionID, e.NodeID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// IsInvalidState reports whether err wraps an *InvalidStateError.
func IsInvalidState(err error) bool {
	var target *InvalidStateError
	return errors.As(err, &target)
}

// IsExecutionError reports whether err wraps an *ExecutionError.
func IsExecutionError(err error) bool {
	var target *ExecutionError
	return errors.As(err, &target)
}
