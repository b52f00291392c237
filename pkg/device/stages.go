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

package device

import (
	"context"
	"fmt"
	"time"

	"jinr.ru/greenlab/go-mxfe/pkg/clock"
	"jinr.ru/greenlab/go-mxfe/pkg/errs"
	"jinr.ru/greenlab/go-mxfe/pkg/jesd"
	"jinr.ru/greenlab/go-mxfe/pkg/jesd204"
	"jinr.ru/greenlab/go-mxfe/pkg/log"
	"jinr.ru/greenlab/go-mxfe/pkg/ncosync"
	"jinr.ru/greenlab/go-mxfe/pkg/regmap"
)

func (d *Device) set(alias regmap.FieldAlias, val uint32) error {
	return d.regs.SetField(regmap.F(alias), val)
}

func (d *Device) get(alias regmap.FieldAlias) (uint32, error) {
	return d.regs.GetField(regmap.F(alias))
}

// DeviceStage implements jesd204.Handler
func (d *Device) DeviceStage(ctx context.Context, stage jesd204.Stage, reason jesd204.Reason) (jesd204.Result, error) {
	switch stage {
	case jesd204.StageClocksConfigured:
		if reason != jesd204.Init {
			return jesd204.NotApplicable, nil
		}
		return jesd204.Done, d.configureClocks()
	case jesd204.StageSetup1:
		if reason != jesd204.Init {
			return jesd204.NotApplicable, d.ReleaseSyncGPIO()
		}
		return jesd204.Done, d.setupStage1(ctx)
	case jesd204.StageSetup2:
		if reason != jesd204.Init {
			return jesd204.NotApplicable, nil
		}
		return jesd204.Done, d.setupStage2()
	case jesd204.StageSetup3:
		if reason != jesd204.Init {
			return jesd204.NotApplicable, nil
		}
		return jesd204.Done, d.setupStage3()
	}
	return jesd204.NotApplicable, errs.ErrInvalidParameter{What: fmt.Sprintf("device stage %s", stage)}
}

// LinkStage implements jesd204.Handler
func (d *Device) LinkStage(ctx context.Context, stage jesd204.Stage, reason jesd204.Reason, fl *jesd204.Link) (jesd204.Result, error) {
	l, ok := d.links[fl.Name]
	if !ok {
		return jesd204.NotApplicable, ErrLinkNotFound{Device: d.cfg.Name, Link: fl.Name}
	}
	switch stage {
	case jesd204.StageLinkParamsInit:
		if reason != jesd204.Init {
			return jesd204.NotApplicable, nil
		}
		return jesd204.Done, d.linkParamsInit(l, fl)
	case jesd204.StageClocksEnable:
		if reason != jesd204.Init || l.Direction != jesd.Transmit {
			return jesd204.NotApplicable, nil
		}
		return jesd204.Done, d.clocksEnable(ctx, l)
	case jesd204.StageLinkEnable:
		return jesd204.Done, d.linkEnable(l, reason == jesd204.Init)
	case jesd204.StageLinkRunning:
		if reason != jesd204.Init {
			d.up = make(map[string]bool)
			d.initialized = false
			fl.Initialized = false
			return jesd204.Done, nil
		}
		if err := d.linkRunning(ctx, l); err != nil {
			return jesd204.Done, err
		}
		fl.Initialized = true
		return jesd204.Done, nil
	}
	return jesd204.NotApplicable, errs.ErrInvalidParameter{What: fmt.Sprintf("link stage %s", stage)}
}

func (d *Device) configureClocks() error {
	s := d.cfg.Sync
	if err := d.set(regmap.FieldSyncLmfcDelay, uint32(s.LmfcDelay)); err != nil {
		return err
	}
	coupling := uint32(0)
	if s.SysrefCouplingAC {
		coupling = 1
	}
	if err := d.set(regmap.FieldSysrefCouplingAC, coupling); err != nil {
		return err
	}
	if err := d.set(regmap.FieldSysrefRxEnable, 1); err != nil {
		return err
	}
	if err := d.clk.Configure(d.cfg.DacHz, d.cfg.AdcHz, d.cfg.RefHz); err != nil {
		return err
	}
	if d.cfg.RefHz == d.cfg.DacHz {
		return nil
	}
	lock, err := d.clk.PllLockStatus()
	if err != nil {
		return err
	}
	if lock != clock.BothLocked {
		return errs.ErrPllNotLocked{Which: "clock", Status: uint8(lock)}
	}
	log.Info("Device %s: clock PLL locked", d.cfg.Name)
	return nil
}

func (d *Device) linkParamsInit(l *jesd.Link, fl *jesd204.Link) error {
	if l.Name == d.names[0] {
		// a new attempt starts
		d.up = make(map[string]bool)
		d.initialized = false
	}
	rate, decim := d.cfg.DacHz, uint32(0)
	if l.Direction == jesd.Transmit {
		decim = d.tx.Interpolation()
	} else {
		rate, decim = d.cfg.AdcHz, d.rx.Decimation()
		if l.Index > 0 {
			if first := d.links[jesd.LinkName(jesd.Receive, 0)]; !jesd.SameFraming(first.Params, l.Params) {
				return errs.ErrInvalidParameter{What: fmt.Sprintf("dual link %s framing differs from %s", l.Name, first.Name)}
			}
		}
	}
	laneRate, err := jesd.LaneRateKbps(l.Params, rate, decim)
	if err != nil {
		return fmt.Errorf("link %s: %w", l.Name, err)
	}

	if l.Index == 0 {
		if err := d.configureDatapath(l); err != nil {
			return err
		}
	}
	if err := d.dp.LaneXbar(l); err != nil {
		return err
	}
	if l.Direction == jesd.Receive {
		if err := d.dp.ConverterSelect(l); err != nil {
			return err
		}
	}

	d.laneRates[l.Name] = laneRate
	fl.Transmit = l.Direction == jesd.Transmit
	fl.Params = l.Params
	fl.LaneRateKbps = laneRate
	log.Info("Device %s: link %s L=%d M=%d F=%d NP=%d %s lane rate %d kbps",
		d.cfg.Name, l.Name, l.L, l.M, l.F, l.NP, l.Version.Encoding(), laneRate)
	return nil
}

// configureDatapath programs the datapath of the link direction, once
// per direction from its first link
func (d *Device) configureDatapath(l *jesd.Link) error {
	if l.Direction == jesd.Transmit {
		if err := d.dp.ConfigureTx(*d.tx); err != nil {
			return err
		}
		if d.cfg.Sync.PinsSwapped && l.Version.Encoding() == jesd.Legacy {
			if err := d.regs.RegSet(regmap.RegSyncbCtrl, regmap.SyncbRxModeRC); err != nil {
				return err
			}
			if err := d.regs.RegSet(regmap.RegGeneralJrxCtrl, regmap.GeneralJrxSync1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := d.dp.ConfigureRx(*d.rx); err != nil {
		return err
	}
	if d.chip.ProdID == regmap.ProdIDAD9081 {
		log.Debug("Device %s: apply crossbar mux0 fix", d.cfg.Name)
		return d.dp.CrossbarFix()
	}
	return nil
}

func (d *Device) subclass() uint32 {
	for _, l := range d.links {
		if l.Subclass == 1 {
			return 1
		}
	}
	return 0
}

func (d *Device) setupStage1(ctx context.Context) error {
	if err := d.regs.RegSet(regmap.RegForceLinkReset, regmap.ForceLinkResetJrx|regmap.ForceLinkResetJtx); err != nil {
		return err
	}
	d.sleep(time.Duration(d.cfg.Sync.ResetSettleMs) * time.Millisecond)

	if err := d.set(regmap.FieldAvrgFlowEn, 1); err != nil {
		return err
	}
	if err := d.set(regmap.FieldSysrefAverage, uint32(d.cfg.Sync.SysrefAverage)); err != nil {
		return err
	}
	if err := d.sysrefOneShot(ctx); err != nil {
		return err
	}
	if err := d.set(regmap.FieldSysrefAverage, 0); err != nil {
		return err
	}
	if err := d.set(regmap.FieldAvrgFlowEn, 0); err != nil {
		return err
	}
	if d.chainTop && !d.cfg.Sync.DirectSysref {
		return d.DriveSyncGPIO()
	}
	return nil
}

// sysrefOneShot aligns every internal clock domain to the next SYSREF edge
func (d *Device) sysrefOneShot(ctx context.Context) error {
	subclass := d.subclass()
	steps := []struct {
		name  string
		alias regmap.FieldAlias
		val   uint32
	}{
		{"sysref subclass", regmap.FieldSyncSubclass, subclass},
		{"sysref one-shot mode", regmap.FieldSyncMode, regmap.SyncModeOneShot},
		{"sysref one-shot arm", regmap.FieldSysrefArm, 1},
	}
	for _, st := range steps {
		if err := d.set(st.alias, st.val); err != nil {
			return errs.ErrSyncFailed{Step: st.name, Err: err}
		}
	}
	if subclass == 0 {
		return nil
	}
	_, err := d.poller.Poll(ctx, "sysref", func() (uint16, error) {
		v, err := d.get(regmap.FieldSysrefCaptured)
		return uint16(v), err
	}, func(v uint16) jesd.Verdict {
		if v == 1 {
			return jesd.Verdict{Pass: true, State: "captured"}
		}
		return jesd.Verdict{State: "waiting for sysref"}
	})
	if err != nil {
		return errs.ErrSyncFailed{Step: "sysref one-shot capture", Err: err}
	}
	log.Debug("Device %s: sysref captured", d.cfg.Name)
	return nil
}

func (d *Device) setupStage2() error {
	if d.cfg.Sync.DirectSysref {
		return ncosync.RunDirectSysref(d.regs)
	}
	d.session = &ncosync.Session{
		IsMaster:  d.chainTop,
		Trigger:   d.trigger,
		GPIO:      d.cfg.Sync.GPIO,
		ExtraLmfc: d.cfg.Sync.ExtraLmfc,
	}
	return ncosync.Run(d.regs, *d.session)
}

func (d *Device) setupStage3() error {
	d.session = nil
	if err := d.set(regmap.FieldMainAutoClkGating, regmap.ClkGatingAuto); err != nil {
		return err
	}
	if d.chip.Revision == revision2 {
		if err := d.set(regmap.FieldAdcDividerCtrl, 1); err != nil {
			return err
		}
		if err := d.set(regmap.FieldAclkPdTxDigClk, 0); err != nil {
			return err
		}
	}
	return d.ReleaseSyncGPIO()
}

func (d *Device) clocksEnable(ctx context.Context, l *jesd.Link) error {
	if l.Version.Encoding() != jesd.Newer {
		return nil
	}
	locked, err := d.get(regmap.FieldSerdesPllLocked)
	if err != nil {
		return err
	}
	if locked != 1 {
		return errs.ErrPllNotLocked{Which: "SERDES", Status: uint8(locked)}
	}
	if err := d.set(regmap.FieldJrxLinkPage, 1<<l.Index); err != nil {
		return err
	}
	// TPL buffer protection stays off, the phase adjust set at Setup3 is kept
	if err := d.set(regmap.FieldJrxTplBufProtectEn, 0); err != nil {
		return err
	}
	return d.calibrate(ctx, l)
}

// calibrate runs the 204C SERDES calibration when the lane rate is above
// the threshold and differs from the rate of the last calibration
func (d *Device) calibrate(ctx context.Context, l *jesd.Link) error {
	rate := d.laneRates[l.Name]
	if rate <= CalibrationThresholdKbps {
		return nil
	}
	last, found, err := d.calib.CalibratedRate(l.Name)
	if err != nil {
		return err
	}
	if found && last == rate {
		log.Debug("Device %s: link %s already calibrated at %d kbps", d.cfg.Name, l.Name, rate)
		return nil
	}
	log.Info("Device %s: link %s 204C calibration at %d kbps", d.cfg.Name, l.Name, rate)
	if err := d.set(regmap.FieldCal204CStart, 1); err != nil {
		return err
	}
	_, err = d.poller.Poll(ctx, l.Name, func() (uint16, error) {
		v, err := d.get(regmap.FieldCal204CDone)
		return uint16(v), err
	}, func(v uint16) jesd.Verdict {
		return jesd.Verdict{Pass: v == 1, State: "204C calibration pending"}
	})
	if err != nil {
		return err
	}
	return d.calib.SetCalibratedRate(l.Name, rate)
}

func (d *Device) linkEnable(l *jesd.Link, enable bool) error {
	if enable {
		resetBit := uint8(regmap.ForceLinkResetJrx)
		if l.Direction == jesd.Receive {
			resetBit = regmap.ForceLinkResetJtx
		}
		v, err := d.regs.RegGet(regmap.RegForceLinkReset)
		if err != nil {
			return err
		}
		if err := d.regs.RegSet(regmap.RegForceLinkReset, v&^resetBit); err != nil {
			return err
		}
	}
	val := uint32(0)
	if enable {
		val = 1
	}
	if l.Direction == jesd.Transmit {
		return d.regs.SetField(regmap.Bit(regmap.FieldJrxLinkEn, uint8(l.Index)), val)
	}
	if err := d.set(regmap.FieldJtxLinkPage, 1<<l.Index); err != nil {
		return err
	}
	return d.set(regmap.FieldJtxLinkEn, val)
}

func (d *Device) readLinkStatus(l *jesd.Link) (uint16, error) {
	if l.Direction == jesd.Transmit {
		if err := d.set(regmap.FieldJrxLinkPage, 1<<l.Index); err != nil {
			return 0, err
		}
		lanes, err := d.get(regmap.FieldJrxLanesReady)
		if err != nil {
			return 0, err
		}
		state, err := d.get(regmap.FieldJrx204CState)
		if err != nil {
			return 0, err
		}
		return uint16(lanes) | uint16(state)<<8, nil
	}

	if err := d.set(regmap.FieldJtxLinkPage, 1<<l.Index); err != nil {
		return 0, err
	}
	var word uint16
	for _, b := range []struct {
		alias regmap.FieldAlias
		shift uint
	}{
		{regmap.FieldJtxQbfState, 0},
		{regmap.FieldJtxSyncN, 4},
		{regmap.FieldJtxPllLocked, 5},
		{regmap.FieldJtxPhaseEstablished, 6},
		{regmap.FieldJtxModeInvalid, 7},
	} {
		v, err := d.get(b.alias)
		if err != nil {
			return 0, err
		}
		word |= uint16(v) << b.shift
	}
	return word, nil
}

func (d *Device) linkRunning(ctx context.Context, l *jesd.Link) error {
	polls, err := d.poller.Poll(ctx, l.Name, func() (uint16, error) {
		return d.readLinkStatus(l)
	}, func(status uint16) jesd.Verdict {
		return jesd.ClassifyLink(l, status)
	})
	if err != nil {
		return err
	}
	d.up[l.Name] = true
	log.Info("Device %s: link %s up after %d poll(s)", d.cfg.Name, l.Name, polls)
	for _, name := range d.names {
		if !d.up[name] {
			return nil
		}
	}
	d.initialized = true
	log.Info("Device %s: initialized", d.cfg.Name)
	return nil
}
