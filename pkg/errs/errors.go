/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

// Package errs holds the error taxonomy shared by the bring-up packages.
// Callers match on the concrete types with errors.As.
package errs

import (
	"fmt"
)

// ErrTransport returned when the register access layer or the clock
// subsystem failed to talk to the chip
type ErrTransport struct {
	Op   string
	Addr uint16
	Err  error
}

func (e ErrTransport) Error() string {
	return fmt.Sprintf("Transport error during %s at 0x%04x: %s", e.Op, e.Addr, e.Err)
}

func (e ErrTransport) Unwrap() error {
	return e.Err
}

// ErrInvalidParameter returned for zero lane count, zero decimation or
// any other malformed link or datapath parameter
type ErrInvalidParameter struct {
	What string
}

func (e ErrInvalidParameter) Error() string {
	return fmt.Sprintf("Invalid parameter: %s", e.What)
}

// ErrPllNotLocked returned when a PLL did not report lock.
// Status keeps the raw lock bits for diagnostics.
type ErrPllNotLocked struct {
	Which  string
	Status uint8
}

func (e ErrPllNotLocked) Error() string {
	return fmt.Sprintf("%s PLL failed to lock (status: 0x%x)", e.Which, e.Status)
}

// ErrSyncFailed returned when a step of the SYSREF one-shot or of the
// NCO master/slave handshake failed
type ErrSyncFailed struct {
	Step string
	Err  error
}

func (e ErrSyncFailed) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("Sync failed at step: %s", e.Step)
	}
	return fmt.Sprintf("Sync failed at step: %s: %s", e.Step, e.Err)
}

func (e ErrSyncFailed) Unwrap() error {
	return e.Err
}

// ErrLinkNotUp returned when the link status poll exhausted its retry budget
type ErrLinkNotUp struct {
	Link  string
	Polls int
	State string
}

func (e ErrLinkNotUp) Error() string {
	return fmt.Sprintf("Link %s not up after %d polls (last state: %s)", e.Link, e.Polls, e.State)
}
