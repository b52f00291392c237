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

// Package jesd204 sequences devices and their links through the ordered
// bring-up stages. Every stage runs across all devices of the topology
// before the next one starts, so the chain master and its slaves move
// in lock step.
package jesd204

import (
	"context"
	"errors"
	"fmt"

	"jinr.ru/greenlab/go-mxfe/pkg/errs"
	"jinr.ru/greenlab/go-mxfe/pkg/jesd"
	"jinr.ru/greenlab/go-mxfe/pkg/log"
)

const DefaultRetries = 3

type Stage int

const (
	StageClocksConfigured Stage = iota
	StageLinkParamsInit
	StageSetup1
	StageSetup2
	StageSetup3
	StageClocksEnable
	StageLinkEnable
	StageLinkRunning
)

var stageNames = [...]string{
	"ClocksConfigured",
	"LinkParamsInit",
	"Setup1",
	"Setup2",
	"Setup3",
	"ClocksEnable",
	"LinkEnable",
	"LinkRunning",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// LinkScoped stages are called once per link, the others once per device
func (s Stage) LinkScoped() bool {
	switch s {
	case StageLinkParamsInit, StageClocksEnable, StageLinkEnable, StageLinkRunning:
		return true
	}
	return false
}

type Reason int

const (
	Init Reason = iota
	Uninit
)

func (r Reason) String() string {
	if r == Uninit {
		return "uninit"
	}
	return "init"
}

type Result int

const (
	Done Result = iota
	NotApplicable
)

func (r Result) String() string {
	if r == NotApplicable {
		return "not applicable"
	}
	return "done"
}

// Link is the framework side copy of a link, filled in at LinkParamsInit
type Link struct {
	Name         string
	Transmit     bool
	Params       jesd.Params
	LaneRateKbps uint64
	Initialized  bool
}

// Handler is implemented by every device taking part in bring-up
type Handler interface {
	Name() string
	LinkNames() []string
	DeviceStage(ctx context.Context, stage Stage, reason Reason) (Result, error)
	LinkStage(ctx context.Context, stage Stage, reason Reason, link *Link) (Result, error)
}

// ErrBringUpFailed returned when the last allowed attempt failed
type ErrBringUpFailed struct {
	Attempts int
	Err      error
}

func (e ErrBringUpFailed) Error() string {
	return fmt.Sprintf("Bring-up failed after %d attempt(s): %s", e.Attempts, e.Err)
}

func (e ErrBringUpFailed) Unwrap() error {
	return e.Err
}

type member struct {
	handler  Handler
	links    []*Link
	progress Stage
	started  bool
}

type Topology struct {
	Retries int
	members []*member
}

// NewTopology keeps handlers in chain order, the first one is the master
func NewTopology(retries int, handlers ...Handler) *Topology {
	if retries < 1 {
		retries = 1
	}
	t := &Topology{Retries: retries}
	for _, h := range handlers {
		m := &member{handler: h}
		for _, name := range h.LinkNames() {
			m.links = append(m.links, &Link{Name: name})
		}
		t.members = append(t.members, m)
	}
	return t
}

func (t *Topology) member(device string) *member {
	for _, m := range t.members {
		if m.handler.Name() == device {
			return m
		}
	}
	return nil
}

// Links returns the link table of the device
func (t *Topology) Links(device string) []*Link {
	if m := t.member(device); m != nil {
		return m.links
	}
	return nil
}

// Progress returns the last stage the device completed in the current
// attempt. The boolean is false before any stage completed.
func (t *Topology) Progress(device string) (Stage, bool) {
	if m := t.member(device); m != nil {
		return m.progress, m.started
	}
	return 0, false
}

// order returns the members in the order a stage visits them. Slaves arm
// their NCO sync at Setup2 before the chain top fires the trigger.
func (t *Topology) order(stage Stage, reason Reason) []*member {
	if stage != StageSetup2 || reason != Init {
		return t.members
	}
	rev := make([]*member, 0, len(t.members))
	for i := len(t.members) - 1; i >= 0; i-- {
		rev = append(rev, t.members[i])
	}
	return rev
}

func (t *Topology) runStage(ctx context.Context, stage Stage, reason Reason) error {
	for _, m := range t.order(stage, reason) {
		name := m.handler.Name()
		if stage.LinkScoped() {
			for _, l := range m.links {
				res, err := m.handler.LinkStage(ctx, stage, reason, l)
				if err != nil {
					return fmt.Errorf("%s: %s %s link %s: %w", name, stage, reason, l.Name, err)
				}
				log.Debug("%s: %s %s link %s: %s", name, stage, reason, l.Name, res)
			}
		} else {
			res, err := m.handler.DeviceStage(ctx, stage, reason)
			if err != nil {
				return fmt.Errorf("%s: %s %s: %w", name, stage, reason, err)
			}
			log.Debug("%s: %s %s: %s", name, stage, reason, res)
		}
		if reason == Init {
			m.progress, m.started = stage, true
		}
	}
	return nil
}

func (t *Topology) attempt(ctx context.Context) error {
	for _, m := range t.members {
		m.progress = StageClocksConfigured
	}
	for stage := StageLinkParamsInit; stage <= StageLinkRunning; stage++ {
		if err := t.runStage(ctx, stage, Init); err != nil {
			return err
		}
	}
	return nil
}

// BringUp configures clocks once, then runs the remaining stages with up
// to Retries attempts. Every retry starts over from LinkParamsInit.
// Invalid parameters are not retried.
func (t *Topology) BringUp(ctx context.Context) (int, error) {
	if err := t.runStage(ctx, StageClocksConfigured, Init); err != nil {
		return 0, ErrBringUpFailed{Attempts: 0, Err: err}
	}
	var err error
	attempts := 0
	for attempts < t.Retries {
		attempts++
		if err = t.attempt(ctx); err == nil {
			log.Info("Bring-up done after %d attempt(s)", attempts)
			return attempts, nil
		}
		log.Warning("Bring-up attempt %d/%d failed: %s", attempts, t.Retries, err)
		var ip errs.ErrInvalidParameter
		if errors.As(err, &ip) || ctx.Err() != nil {
			break
		}
	}
	return attempts, ErrBringUpFailed{Attempts: attempts, Err: err}
}

// Teardown walks the stages backwards with Uninit. It does not stop at
// the first error and returns it after every stage ran.
func (t *Topology) Teardown(ctx context.Context) error {
	order := []Stage{
		StageLinkRunning,
		StageLinkEnable,
		StageClocksEnable,
		StageLinkParamsInit,
		StageSetup3,
		StageSetup2,
		StageSetup1,
	}
	var first error
	for _, stage := range order {
		if err := t.runStage(ctx, stage, Uninit); err != nil {
			log.Warning("Teardown: %s", err)
			if first == nil {
				first = err
			}
		}
	}
	for _, m := range t.members {
		m.started = false
	}
	return first
}
