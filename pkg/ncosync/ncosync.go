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

// Package ncosync phase aligns the NCOs of one or more chips. The chain
// master fires a trigger that every chip, the master included, turns into
// a synchronous reset of its DDC NCOs on the next SYSREF or LMFC edge.
package ncosync

import (
	"fmt"

	"jinr.ru/greenlab/go-mxfe/pkg/errs"
	"jinr.ru/greenlab/go-mxfe/pkg/hal/ifc"
	"jinr.ru/greenlab/go-mxfe/pkg/log"
	"jinr.ru/greenlab/go-mxfe/pkg/regmap"
)

type TriggerSource uint8

const (
	TriggerSysref      TriggerSource = 0
	TriggerLmfcRising  TriggerSource = 1
	TriggerLmfcFalling TriggerSource = 2
)

var triggerNames = map[TriggerSource]string{
	TriggerSysref:      "sysref",
	TriggerLmfcRising:  "lmfc_rising",
	TriggerLmfcFalling: "lmfc_falling",
}

func (t TriggerSource) String() string {
	if name, ok := triggerNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TriggerSource(%d)", uint8(t))
}

func ParseTriggerSource(s string) (TriggerSource, error) {
	if s == "" {
		return TriggerLmfcRising, nil
	}
	for t, name := range triggerNames {
		if name == s {
			return t, nil
		}
	}
	return 0, errs.ErrInvalidParameter{What: fmt.Sprintf("NCO sync trigger source %q", s)}
}

// Session is the per chip state of one synchronization run
type Session struct {
	IsMaster  bool
	Trigger   TriggerSource
	GPIO      uint8
	ExtraLmfc uint8
}

func (s Session) Validate() error {
	if s.GPIO > regmap.GpioMax {
		return errs.ErrInvalidParameter{What: fmt.Sprintf("sync GPIO %d", s.GPIO)}
	}
	if uint32(s.ExtraLmfc) > regmap.F(regmap.FieldNcoSyncMsExtraLmfc).Mask() {
		return errs.ErrInvalidParameter{What: fmt.Sprintf("extra LMFC count %d", s.ExtraLmfc)}
	}
	if _, ok := triggerNames[s.Trigger]; !ok {
		return errs.ErrInvalidParameter{What: fmt.Sprintf("trigger source %d", s.Trigger)}
	}
	return nil
}

func (s Session) role() string {
	if s.IsMaster {
		return "master"
	}
	return "slave"
}

type step struct {
	name  string
	field regmap.Field
	value uint32
}

func run(regs ifc.Regs, steps []step) error {
	for _, st := range steps {
		if err := regs.SetField(st.field, st.value); err != nil {
			return errs.ErrSyncFailed{Step: st.name, Err: err}
		}
	}
	return nil
}

func ddcResync() []step {
	return []step{
		{"coarse DDC sync disable", regmap.F(regmap.FieldCddcSyncEnable), 0},
		{"coarse DDC sync enable", regmap.F(regmap.FieldCddcSyncEnable), regmap.CddcAll},
		{"fine DDC sync disable", regmap.F(regmap.FieldFddcSyncEnable), 0},
		{"fine DDC sync enable", regmap.F(regmap.FieldFddcSyncEnable), regmap.FddcAll},
	}
}

// Run performs the master/slave handshake on one chip. Automatic clock
// gating is disabled before anything else and the master trigger is the
// very last write. Clock gating stays disabled until the caller restores it.
func Run(regs ifc.Regs, s Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	log.Info("NCO sync: %s, trigger %s, gpio %d, extra lmfc %d", s.role(), s.Trigger, s.GPIO, s.ExtraLmfc)

	mode, gpioMode := uint32(regmap.NcoSyncMsSlave), uint32(regmap.GpioModeSyncIn)
	if s.IsMaster {
		mode, gpioMode = regmap.NcoSyncMsMaster, regmap.GpioModeSyncOut
	}
	steps := []step{
		{"disable clock gating", regmap.F(regmap.FieldMainAutoClkGating), regmap.ClkGatingDisabled},
		{"extra lmfc", regmap.F(regmap.FieldNcoSyncMsExtraLmfc), uint32(s.ExtraLmfc)},
		{"trigger source", regmap.F(regmap.FieldNcoSyncMsTrigSource), uint32(s.Trigger)},
		{"master/slave mode", regmap.F(regmap.FieldNcoSyncMsMode), mode},
		{"sync gpio direction", regmap.GpioCfg(s.GPIO), gpioMode},
		{"reset via sysref disable", regmap.F(regmap.FieldNcoSyncResetViaSysref), 0},
		{"reset via sysref enable", regmap.F(regmap.FieldNcoSyncResetViaSysref), 1},
	}
	steps = append(steps, ddcResync()...)
	if s.IsMaster {
		steps = append(steps, step{"master trigger", regmap.F(regmap.FieldNcoSyncMsTrig), 1})
	}
	return run(regs, steps)
}

// RunDirectSysref makes every DDC NCO reset on the next SYSREF edge,
// with no handshake between chips.
func RunDirectSysref(regs ifc.Regs) error {
	log.Info("NCO sync: direct SYSREF mode")
	steps := []step{
		{"trigger source", regmap.F(regmap.FieldNcoSyncMsTrigSource), uint32(TriggerSysref)},
		{"extra lmfc", regmap.F(regmap.FieldNcoSyncMsExtraLmfc), 0},
		{"reset via sysref disable", regmap.F(regmap.FieldNcoSyncResetViaSysref), 0},
		{"reset via sysref enable", regmap.F(regmap.FieldNcoSyncResetViaSysref), 1},
	}
	return run(regs, append(steps, ddcResync()...))
}
