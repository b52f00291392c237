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

package datapath

import (
	"fmt"
	"math/bits"

	"jinr.ru/greenlab/go-mxfe/pkg/errs"
	"jinr.ru/greenlab/go-mxfe/pkg/hal/ifc"
	"jinr.ru/greenlab/go-mxfe/pkg/jesd"
	"jinr.ru/greenlab/go-mxfe/pkg/log"
	"jinr.ru/greenlab/go-mxfe/pkg/regmap"
)

const (
	MainPaths    = 4
	ChannelPaths = 8
	ftwBits      = 48
	maxGain      = 0xFFF
)

var mainDecimationCodes = map[uint32]uint32{
	1: 0xC, 2: 0x0, 3: 0x8, 4: 0x1, 6: 0x5, 8: 0x2,
	9: 0x9, 12: 0x6, 16: 0x3, 18: 0xA, 24: 0x7, 36: 0xB,
}

var chanDecimationCodes = map[uint32]uint32{
	1: 0x8, 2: 0x0, 3: 0x4, 4: 0x1, 6: 0x5, 8: 0x2,
	12: 0x6, 16: 0x3, 24: 0x7,
}

var mainInterpolations = map[uint32]bool{1: true, 2: true, 3: true, 4: true, 6: true, 8: true, 12: true}
var chanInterpolations = map[uint32]bool{1: true, 2: true, 3: true, 4: true, 6: true, 8: true}

func MainDecimationCode(dcm uint32) (uint32, error) {
	code, ok := mainDecimationCodes[dcm]
	if !ok {
		return 0, errs.ErrInvalidParameter{What: fmt.Sprintf("coarse decimation %d", dcm)}
	}
	return code, nil
}

func ChanDecimationCode(dcm uint32) (uint32, error) {
	code, ok := chanDecimationCodes[dcm]
	if !ok {
		return 0, errs.ErrInvalidParameter{What: fmt.Sprintf("fine decimation %d", dcm)}
	}
	return code, nil
}

// FTW returns the 48-bit NCO frequency tuning word |shift|*2^48/rate,
// two's complement for negative shifts.
func FTW(shiftHz int64, rateHz uint64) (uint64, error) {
	if rateHz == 0 {
		return 0, errs.ErrInvalidParameter{What: "NCO rate 0"}
	}
	abs := uint64(shiftHz)
	if shiftHz < 0 {
		abs = uint64(-shiftHz)
	}
	if abs >= rateHz {
		return 0, errs.ErrInvalidParameter{What: fmt.Sprintf("NCO shift %d Hz outside of rate %d Hz", shiftHz, rateHz)}
	}
	// abs*2^48 as a 128-bit value
	hi, lo := bits.Mul64(abs, 1<<ftwBits)
	q, _ := bits.Div64(hi, lo, rateHz)
	if shiftHz < 0 && q != 0 {
		q = (1 << ftwBits) - q
	}
	return q, nil
}

// Rx is the receive datapath: four coarse DDCs followed by eight fine DDCs
type Rx struct {
	AdcHz       uint64
	MainDcm     [MainPaths]uint32
	ChanDcm     [ChannelPaths]uint32
	MainShiftHz [MainPaths]int64
	ChanShiftHz [ChannelPaths]int64
	MainC2R     [MainPaths]bool
	ChanC2R     [ChannelPaths]bool
	MainEnable  [MainPaths]bool
	ChanEnable  [ChannelPaths]bool
	NyquistZone [MainPaths]uint8
}

// Decimation is the total decimation of the first enabled coarse and
// fine DDC, zero when the path is disabled.
func (rx Rx) Decimation() uint32 {
	var main, ch uint32
	for i, en := range rx.MainEnable {
		if en {
			main = rx.MainDcm[i]
			break
		}
	}
	for i, en := range rx.ChanEnable {
		if en {
			ch = rx.ChanDcm[i]
			break
		}
	}
	return main * ch
}

// Tx is the transmit datapath: eight channel DUCs summed into four main DUCs
type Tx struct {
	DacHz       uint64
	MainInterp  uint32
	ChanInterp  uint32
	MainShiftHz [MainPaths]int64
	ChanShiftHz [ChannelPaths]int64
	ChanGain    [ChannelPaths]uint16
	DacXbar     [MainPaths]uint8
}

func (tx Tx) Interpolation() uint32 {
	return tx.MainInterp * tx.ChanInterp
}

// Configurator programs the converter datapaths of one chip
type Configurator struct {
	regs ifc.Regs
}

func New(regs ifc.Regs) *Configurator {
	return &Configurator{regs: regs}
}

func (c *Configurator) set(alias regmap.FieldAlias, val uint32) error {
	return c.regs.SetField(regmap.F(alias), val)
}

func (c *Configurator) setFTW(lo, hi regmap.FieldAlias, ftw uint64) error {
	if err := c.set(lo, uint32(ftw)); err != nil {
		return err
	}
	return c.set(hi, uint32(ftw>>32))
}

func bitmask(en []bool) uint32 {
	var m uint32
	for i, e := range en {
		if e {
			m |= 1 << i
		}
	}
	return m
}

func (c *Configurator) ConfigureRx(rx Rx) error {
	log.Info("Rx datapath: main dcm %v chan dcm %v", rx.MainDcm, rx.ChanDcm)
	for i := 0; i < MainPaths; i++ {
		if !rx.MainEnable[i] {
			continue
		}
		code, err := MainDecimationCode(rx.MainDcm[i])
		if err != nil {
			return err
		}
		ftw, err := FTW(rx.MainShiftHz[i], rx.AdcHz)
		if err != nil {
			return err
		}
		if err := c.set(regmap.FieldCddcPage, 1<<i); err != nil {
			return err
		}
		if err := c.set(regmap.FieldCddcDcm, code); err != nil {
			return err
		}
		if err := c.set(regmap.FieldCddcC2R, b2u(rx.MainC2R[i])); err != nil {
			return err
		}
		if err := c.setFTW(regmap.FieldCddcFtwLo, regmap.FieldCddcFtwHi, ftw); err != nil {
			return err
		}
		if err := c.regs.SetField(regmap.F(regmap.FieldNyquistZone).At(i), uint32(rx.NyquistZone[i]&1)); err != nil {
			return err
		}
	}
	for i := 0; i < ChannelPaths; i++ {
		if !rx.ChanEnable[i] {
			continue
		}
		code, err := ChanDecimationCode(rx.ChanDcm[i])
		if err != nil {
			return err
		}
		// fine DDCs run at the output rate of the coarse DDC feeding them
		main := rx.MainDcm[i/2]
		if main == 0 {
			return errs.ErrInvalidParameter{What: fmt.Sprintf("fine DDC %d fed by disabled coarse DDC %d", i, i/2)}
		}
		ftw, err := FTW(rx.ChanShiftHz[i], rx.AdcHz/uint64(main))
		if err != nil {
			return err
		}
		if err := c.set(regmap.FieldFddcPage, 1<<i); err != nil {
			return err
		}
		if err := c.set(regmap.FieldFddcDcm, code); err != nil {
			return err
		}
		if err := c.set(regmap.FieldFddcC2R, b2u(rx.ChanC2R[i])); err != nil {
			return err
		}
		if err := c.setFTW(regmap.FieldFddcFtwLo, regmap.FieldFddcFtwHi, ftw); err != nil {
			return err
		}
	}
	if err := c.set(regmap.FieldCddcEnable, bitmask(rx.MainEnable[:])); err != nil {
		return err
	}
	return c.set(regmap.FieldFddcEnable, bitmask(rx.ChanEnable[:]))
}

func (c *Configurator) ConfigureTx(tx Tx) error {
	log.Info("Tx datapath: main interp %d chan interp %d", tx.MainInterp, tx.ChanInterp)
	if !mainInterpolations[tx.MainInterp] {
		return errs.ErrInvalidParameter{What: fmt.Sprintf("main interpolation %d", tx.MainInterp)}
	}
	if !chanInterpolations[tx.ChanInterp] {
		return errs.ErrInvalidParameter{What: fmt.Sprintf("channel interpolation %d", tx.ChanInterp)}
	}
	if err := c.set(regmap.FieldTxMainInterp, tx.MainInterp); err != nil {
		return err
	}
	if err := c.set(regmap.FieldTxChanInterp, tx.ChanInterp); err != nil {
		return err
	}
	for i := 0; i < MainPaths; i++ {
		ftw, err := FTW(tx.MainShiftHz[i], tx.DacHz)
		if err != nil {
			return err
		}
		if tx.DacXbar[i] > 0xF {
			return errs.ErrInvalidParameter{What: fmt.Sprintf("DAC%d crossbar 0x%x", i, tx.DacXbar[i])}
		}
		if err := c.set(regmap.FieldDucMainPage, 1<<i); err != nil {
			return err
		}
		if err := c.setFTW(regmap.FieldDucMainFtwLo, regmap.FieldDucMainFtwHi, ftw); err != nil {
			return err
		}
		if err := c.set(regmap.FieldDacXbar, uint32(tx.DacXbar[i])); err != nil {
			return err
		}
	}
	chanRate := tx.DacHz / uint64(tx.MainInterp)
	for i := 0; i < ChannelPaths; i++ {
		ftw, err := FTW(tx.ChanShiftHz[i], chanRate)
		if err != nil {
			return err
		}
		if tx.ChanGain[i] > maxGain {
			return errs.ErrInvalidParameter{What: fmt.Sprintf("channel %d gain 0x%x", i, tx.ChanGain[i])}
		}
		if err := c.set(regmap.FieldDucChanPage, 1<<i); err != nil {
			return err
		}
		if err := c.setFTW(regmap.FieldDucChanFtwLo, regmap.FieldDucChanFtwHi, ftw); err != nil {
			return err
		}
		if err := c.set(regmap.FieldDucChanGain, uint32(tx.ChanGain[i])); err != nil {
			return err
		}
	}
	return nil
}

// LaneXbar maps the logical lanes of the link onto physical lanes
func (c *Configurator) LaneXbar(link *jesd.Link) error {
	page, xbar := regmap.FieldJrxLinkPage, regmap.FieldJrxLaneXbar
	if link.Direction == jesd.Receive {
		page, xbar = regmap.FieldJtxLinkPage, regmap.FieldJtxLaneXbar
	}
	if err := c.set(page, 1<<link.Index); err != nil {
		return err
	}
	for i, phys := range link.LaneMapping {
		if err := c.regs.SetField(regmap.F(xbar).At(i), uint32(phys)); err != nil {
			return err
		}
	}
	if link.Direction == jesd.Receive {
		for i, phys := range link.LaneMapping {
			if err := c.regs.SetField(regmap.F(regmap.FieldJtxLid).At(i), uint32(phys)); err != nil {
				return err
			}
		}
	} else {
		if err := c.set(regmap.FieldJrxTplPhaseAdjust, uint32(link.TplPhaseAdjust)); err != nil {
			return err
		}
	}
	return nil
}

// ConverterSelect routes virtual converters into a receive link
func (c *Configurator) ConverterSelect(link *jesd.Link) error {
	if link.Direction != jesd.Receive {
		return errs.ErrInvalidParameter{What: fmt.Sprintf("converter select on transmit link %s", link.Name)}
	}
	if err := c.set(regmap.FieldJtxLinkPage, 1<<link.Index); err != nil {
		return err
	}
	for i, conv := range link.ConverterSelect {
		if err := c.regs.SetField(regmap.F(regmap.FieldJtxConvSel).At(i), uint32(conv)); err != nil {
			return err
		}
	}
	return nil
}

// CrossbarFix reroutes PFIR inputs of the 4x4 crossbar mux0 so that
// pair 0 takes ADC0/ADC1 and pair 1 takes ADC3/ADC0.
func (c *Configurator) CrossbarFix() error {
	pairs := [][2]uint32{{0, 1}, {3, 0}}
	for i, p := range pairs {
		if err := c.regs.SetField(regmap.F(regmap.FieldPfirDinSelectI).At(i), p[0]); err != nil {
			return err
		}
		if err := c.regs.SetField(regmap.F(regmap.FieldPfirDinSelectQ).At(i), p[1]); err != nil {
			return err
		}
	}
	return nil
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
