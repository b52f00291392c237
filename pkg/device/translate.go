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
	"fmt"

	"jinr.ru/greenlab/go-mxfe/pkg/config"
	"jinr.ru/greenlab/go-mxfe/pkg/datapath"
	"jinr.ru/greenlab/go-mxfe/pkg/errs"
	"jinr.ru/greenlab/go-mxfe/pkg/jesd"
)

func (d *Device) translate() error {
	cfg := d.cfg
	if cfg.TxLink != nil {
		tx, err := txDatapath(cfg.Tx, cfg.DacHz)
		if err != nil {
			return err
		}
		d.tx = tx
		count := 1
		if cfg.TxLink.DualLink {
			count = 2
		}
		// both links of a dual link share one configuration
		for i := 0; i < count; i++ {
			l, err := jesd.Translate(jesd.Transmit, i, *cfg.TxLink)
			if err != nil {
				return err
			}
			d.links[l.Name] = l
		}
	}
	if len(cfg.RxLinks) > 0 {
		rx, err := rxDatapath(cfg.Rx, cfg.AdcHz)
		if err != nil {
			return err
		}
		d.rx = rx
		for i, lc := range cfg.RxLinks {
			l, err := jesd.Translate(jesd.Receive, i, *lc)
			if err != nil {
				return err
			}
			d.links[l.Name] = l
		}
	}
	d.names = sortedNames(d.links)
	return nil
}

func tooLong(what string, n, max int) error {
	return errs.ErrInvalidParameter{What: fmt.Sprintf("%s: %d entries, at most %d", what, n, max)}
}

func txDatapath(p *config.TxPath, dacHz uint64) (*datapath.Tx, error) {
	if p == nil {
		return nil, errs.ErrInvalidParameter{What: "tx link without tx datapath"}
	}
	tx := &datapath.Tx{
		DacHz:      dacHz,
		MainInterp: p.MainInterpolation,
		ChanInterp: p.ChannelInterpolation,
	}
	if len(p.MainNcoShiftHz) > datapath.MainPaths {
		return nil, tooLong("tx main NCO shifts", len(p.MainNcoShiftHz), datapath.MainPaths)
	}
	copy(tx.MainShiftHz[:], p.MainNcoShiftHz)
	if len(p.ChannelNcoShiftHz) > datapath.ChannelPaths {
		return nil, tooLong("tx channel NCO shifts", len(p.ChannelNcoShiftHz), datapath.ChannelPaths)
	}
	copy(tx.ChanShiftHz[:], p.ChannelNcoShiftHz)
	if len(p.ChannelGain) > datapath.ChannelPaths {
		return nil, tooLong("tx channel gains", len(p.ChannelGain), datapath.ChannelPaths)
	}
	copy(tx.ChanGain[:], p.ChannelGain)
	if len(p.DacCrossbar) > datapath.MainPaths {
		return nil, tooLong("dac crossbar", len(p.DacCrossbar), datapath.MainPaths)
	}
	for i, x := range p.DacCrossbar {
		if x < 0 || x > 0xF {
			return nil, errs.ErrInvalidParameter{What: fmt.Sprintf("dac crossbar[%d]=0x%x", i, x)}
		}
		tx.DacXbar[i] = uint8(x)
	}
	return tx, nil
}

func rxDatapath(p *config.RxPath, adcHz uint64) (*datapath.Rx, error) {
	if p == nil {
		return nil, errs.ErrInvalidParameter{What: "rx links without rx datapath"}
	}
	rx := &datapath.Rx{AdcHz: adcHz}
	for _, c := range []struct {
		what string
		n    int
		max  int
	}{
		{"rx main decimation", len(p.MainDecimation), datapath.MainPaths},
		{"rx channel decimation", len(p.ChannelDecimation), datapath.ChannelPaths},
		{"rx main NCO shifts", len(p.MainNcoShiftHz), datapath.MainPaths},
		{"rx channel NCO shifts", len(p.ChannelNcoShiftHz), datapath.ChannelPaths},
		{"rx main enable", len(p.MainEnable), datapath.MainPaths},
		{"rx channel enable", len(p.ChannelEnable), datapath.ChannelPaths},
		{"rx main complex to real", len(p.MainComplexToReal), datapath.MainPaths},
		{"rx channel complex to real", len(p.ChannelComplexToReal), datapath.ChannelPaths},
		{"rx nyquist zone", len(p.NyquistZone), datapath.MainPaths},
	} {
		if c.n > c.max {
			return nil, tooLong(c.what, c.n, c.max)
		}
	}
	copy(rx.MainDcm[:], p.MainDecimation)
	copy(rx.ChanDcm[:], p.ChannelDecimation)
	copy(rx.MainShiftHz[:], p.MainNcoShiftHz)
	copy(rx.ChanShiftHz[:], p.ChannelNcoShiftHz)
	copy(rx.MainEnable[:], p.MainEnable)
	copy(rx.ChanEnable[:], p.ChannelEnable)
	copy(rx.MainC2R[:], p.MainComplexToReal)
	copy(rx.ChanC2R[:], p.ChannelComplexToReal)
	for i, z := range p.NyquistZone {
		if z != 0 && z != 1 {
			return nil, errs.ErrInvalidParameter{What: fmt.Sprintf("nyquist zone[%d]=%d", i, z)}
		}
		rx.NyquistZone[i] = uint8(z)
	}
	return rx, nil
}
