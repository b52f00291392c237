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

package clock

import (
	"fmt"

	"jinr.ru/greenlab/go-mxfe/pkg/errs"
	"jinr.ru/greenlab/go-mxfe/pkg/hal/ifc"
	"jinr.ru/greenlab/go-mxfe/pkg/log"
	"jinr.ru/greenlab/go-mxfe/pkg/regmap"
)

// LockState is the pair of PLL lock detector bits: bit0 slow, bit1 fast
type LockState uint8

const (
	Unlocked   LockState = 0
	SlowLocked LockState = 1
	FastLocked LockState = 2
	BothLocked LockState = 3
)

func (s LockState) String() string {
	switch s {
	case Unlocked:
		return "Unlocked"
	case SlowLocked:
		return "SlowLocked"
	case FastLocked:
		return "FastLocked"
	case BothLocked:
		return "BothLocked"
	}
	return fmt.Sprintf("LockState(%d)", uint8(s))
}

const (
	minPfdHz  = 25_000_000
	maxPfdHz  = 750_000_000
	minFbDiv  = 4
	maxFbDiv  = 255
	maxRefDiv = 4
	maxAdcDiv = 4
)

// Subsystem programs the on-chip clock PLL and the ADC clock divider
type Subsystem struct {
	regs ifc.Regs
}

func New(regs ifc.Regs) *Subsystem {
	return &Subsystem{regs: regs}
}

// Dividers is the PLL setting that produces the DAC clock from the reference
type Dividers struct {
	Bypass bool
	RefDiv uint32
	FbDiv  uint32
	AdcDiv uint32
}

// Plan finds dividers for DAC = ref / RefDiv * FbDiv and ADC = DAC / AdcDiv.
// The PLL is bypassed when the reference already runs at the DAC rate.
func Plan(dacHz, adcHz, refHz uint64) (Dividers, error) {
	var d Dividers
	if dacHz == 0 || adcHz == 0 || refHz == 0 {
		return d, errs.ErrInvalidParameter{What: fmt.Sprintf("clock rates dac=%d adc=%d ref=%d", dacHz, adcHz, refHz)}
	}
	if dacHz%adcHz != 0 || dacHz/adcHz < 1 || dacHz/adcHz > maxAdcDiv {
		return d, errs.ErrInvalidParameter{What: fmt.Sprintf("ADC clock %d Hz is not DAC clock %d Hz divided by 1..%d", adcHz, dacHz, maxAdcDiv)}
	}
	d.AdcDiv = uint32(dacHz / adcHz)

	if refHz == dacHz {
		d.Bypass = true
		return d, nil
	}
	for r := uint64(1); r <= maxRefDiv; r++ {
		if refHz%r != 0 {
			continue
		}
		pfd := refHz / r
		if pfd < minPfdHz || pfd > maxPfdHz || dacHz%pfd != 0 {
			continue
		}
		m := dacHz / pfd
		if m < minFbDiv || m > maxFbDiv {
			continue
		}
		d.RefDiv = uint32(r)
		d.FbDiv = uint32(m)
		return d, nil
	}
	return d, errs.ErrInvalidParameter{What: fmt.Sprintf("no PLL setting for ref %d Hz -> DAC %d Hz", refHz, dacHz)}
}

func (c *Subsystem) Configure(dacHz, adcHz, refHz uint64) error {
	d, err := Plan(dacHz, adcHz, refHz)
	if err != nil {
		return err
	}
	log.Info("Clocks: DAC %d Hz, ADC %d Hz, ref %d Hz, plan %+v", dacHz, adcHz, refHz, d)
	if d.Bypass {
		if err := c.regs.SetField(regmap.F(regmap.FieldPllEnable), 0); err != nil {
			return err
		}
	} else {
		for _, fv := range []struct {
			alias regmap.FieldAlias
			val   uint32
		}{
			{regmap.FieldPllRefDiv, d.RefDiv - 1},
			{regmap.FieldPllFbDiv, d.FbDiv},
			{regmap.FieldPllEnable, 1},
		} {
			if err := c.regs.SetField(regmap.F(fv.alias), fv.val); err != nil {
				return err
			}
		}
	}
	return c.regs.SetField(regmap.F(regmap.FieldAdcClkDiv), d.AdcDiv-1)
}

func (c *Subsystem) PllLockStatus() (LockState, error) {
	v, err := c.regs.RegGet(regmap.RegClkPllStatus)
	if err != nil {
		return Unlocked, err
	}
	return LockState(v & regmap.ClkPllLockMask), nil
}
