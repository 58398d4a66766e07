// Copyright 2025 The Multidist Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hostexec

// SessionState holds the per-session executor counters. One value exists
// per connection and is threaded through the call chain explicitly, never
// shared across sessions. The host's execution model is single-threaded
// per session, so no locking is involved.
type SessionState struct {
	functionCallLevel int
}

// NewSessionState returns the state for a fresh session.
func NewSessionState() *SessionState {
	return &SessionState{}
}

// FunctionCallLevel returns the current procedural-call nesting depth.
func (s *SessionState) FunctionCallLevel() int {
	return s.functionCallLevel
}

// EnterFunctionCall increments the nesting depth and returns a restore
// function that puts the counter back to its pre-call value. Restoring to
// the saved value, rather than decrementing, keeps the counter correct when
// an abort unwinds several call levels at once. The restore function must
// run on every exit path.
func (s *SessionState) EnterFunctionCall() (restore func()) {
	saved := s.functionCallLevel
	s.functionCallLevel++
	return func() {
		s.functionCallLevel = saved
	}
}

// ResetOnAbort zeroes the nesting depth. The host's transaction-abort
// callback invokes this; the dispatcher itself only ever restores to saved
// values.
func (s *SessionState) ResetOnAbort() {
	s.functionCallLevel = 0
}
