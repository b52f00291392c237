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
	"sort"
	"time"

	"jinr.ru/greenlab/go-mxfe/pkg/clock"
	"jinr.ru/greenlab/go-mxfe/pkg/config"
	"jinr.ru/greenlab/go-mxfe/pkg/datapath"
	"jinr.ru/greenlab/go-mxfe/pkg/errs"
	"jinr.ru/greenlab/go-mxfe/pkg/hal/ifc"
	"jinr.ru/greenlab/go-mxfe/pkg/jesd"
	"jinr.ru/greenlab/go-mxfe/pkg/jesd204"
	"jinr.ru/greenlab/go-mxfe/pkg/log"
	"jinr.ru/greenlab/go-mxfe/pkg/ncosync"
	"jinr.ru/greenlab/go-mxfe/pkg/regmap"
)

const (
	// 204C links above this lane rate need a SERDES calibration pass
	CalibrationThresholdKbps = 16_230_000
	softResetSettle          = time.Millisecond
	revision2                = 2
)

type Clock interface {
	Configure(dacHz, adcHz, refHz uint64) error
	PllLockStatus() (clock.LockState, error)
}

// CalibrationStore remembers the lane rate every link was last calibrated at
type CalibrationStore interface {
	CalibratedRate(link string) (uint64, bool, error)
	SetCalibratedRate(link string, kbps uint64) error
}

type memCalibration map[string]uint64

func (m memCalibration) CalibratedRate(link string) (uint64, bool, error) {
	rate, ok := m[link]
	return rate, ok, nil
}

func (m memCalibration) SetCalibratedRate(link string, kbps uint64) error {
	m[link] = kbps
	return nil
}

type Options struct {
	// ChainTop marks the master of a multi-chip chain
	ChainTop    bool
	Clock       Clock
	Calibration CalibrationStore
	Poller      jesd.Poller
	Sleep       func(time.Duration)
}

type ChipID struct {
	ProdID   uint16
	Revision uint8
}

func (c ChipID) String() string {
	return fmt.Sprintf("%s rev %d", regmap.SupportedProdIDs[c.ProdID], c.Revision)
}

type Device struct {
	cfg      *config.Device
	regs     ifc.Regs
	clk      Clock
	dp       *datapath.Configurator
	calib    CalibrationStore
	poller   jesd.Poller
	sleep    func(time.Duration)
	chainTop bool
	chip     ChipID
	trigger  ncosync.TriggerSource
	session  *ncosync.Session

	tx        *datapath.Tx
	rx        *datapath.Rx
	links     map[string]*jesd.Link
	names     []string
	laneRates map[string]uint64
	up        map[string]bool

	initialized bool
}

var _ jesd204.Handler = &Device{}

// New resets the chip, verifies its identity and prepares links and
// datapaths from the config. Nothing else is written before bring-up.
func New(cfg *config.Device, regs ifc.Regs, opts Options) (*Device, error) {
	d := &Device{
		cfg:       cfg,
		regs:      regs,
		clk:       opts.Clock,
		dp:        datapath.New(regs),
		calib:     opts.Calibration,
		poller:    opts.Poller,
		sleep:     opts.Sleep,
		chainTop:  opts.ChainTop,
		links:     make(map[string]*jesd.Link),
		laneRates: make(map[string]uint64),
		up:        make(map[string]bool),
	}
	if d.clk == nil {
		d.clk = clock.New(regs)
	}
	if d.calib == nil {
		d.calib = memCalibration{}
	}
	if d.sleep == nil {
		d.sleep = time.Sleep
	}
	trigger, err := ncosync.ParseTriggerSource(cfg.Sync.Trigger)
	if err != nil {
		return nil, err
	}
	d.trigger = trigger
	if cfg.Sync.GPIO > regmap.GpioMax {
		return nil, errs.ErrInvalidParameter{What: fmt.Sprintf("device %s: sync gpio %d, must be 0..%d", cfg.Name, cfg.Sync.GPIO, regmap.GpioMax)}
	}
	if err := d.translate(); err != nil {
		return nil, err
	}
	if len(d.names) == 0 {
		return nil, errs.ErrInvalidParameter{What: fmt.Sprintf("device %s: no links configured", cfg.Name)}
	}
	if err := d.reset(); err != nil {
		return nil, err
	}
	if _, err := d.Identify(); err != nil {
		return nil, err
	}
	log.Info("Device %s: %s, chain %s, links %v", d.cfg.Name, d.chip, d.role(), d.names)
	return d, nil
}

func (d *Device) role() string {
	if d.chainTop {
		return "master"
	}
	return "slave"
}

func (d *Device) reset() error {
	if err := d.regs.RegSet(regmap.RegSpiConfig, regmap.SpiSoftReset); err != nil {
		return err
	}
	d.sleep(softResetSettle)
	return nil
}

// Identify reads the chip product id and revision
func (d *Device) Identify() (ChipID, error) {
	lo, err := d.regs.RegGet(regmap.RegChipProdIDLo)
	if err != nil {
		return ChipID{}, err
	}
	hi, err := d.regs.RegGet(regmap.RegChipProdIDHi)
	if err != nil {
		return ChipID{}, err
	}
	rev, err := d.regs.RegGet(regmap.RegChipRevision)
	if err != nil {
		return ChipID{}, err
	}
	id := ChipID{ProdID: uint16(hi)<<8 | uint16(lo), Revision: rev}
	if _, ok := regmap.SupportedProdIDs[id.ProdID]; !ok {
		return id, ErrUnsupportedChip{ProdID: id.ProdID}
	}
	d.chip = id
	return id, nil
}

// Name implements jesd204.Handler
func (d *Device) Name() string {
	return d.cfg.Name
}

func (d *Device) Config() *config.Device {
	return d.cfg
}

func (d *Device) LinkNames() []string {
	return d.names
}

func (d *Device) Link(name string) (*jesd.Link, bool) {
	l, ok := d.links[name]
	return l, ok
}

func (d *Device) Chip() ChipID {
	return d.chip
}

func (d *Device) ChainTop() bool {
	return d.chainTop
}

func (d *Device) Initialized() bool {
	return d.initialized
}

// Regs gives raw register access for diagnostics
func (d *Device) Regs() ifc.Regs {
	return d.regs
}

// DriveSyncGPIO makes the chain master drive the NCO sync line
func (d *Device) DriveSyncGPIO() error {
	log.Debug("Device %s: drive sync gpio %d", d.cfg.Name, d.cfg.Sync.GPIO)
	return d.regs.SetField(regmap.GpioCfg(d.cfg.Sync.GPIO), regmap.GpioModeSyncOut)
}

// ReleaseSyncGPIO returns the NCO sync line to high impedance
func (d *Device) ReleaseSyncGPIO() error {
	log.Debug("Device %s: release sync gpio %d", d.cfg.Name, d.cfg.Sync.GPIO)
	return d.regs.SetField(regmap.GpioCfg(d.cfg.Sync.GPIO), regmap.GpioModeHighZ)
}

type LinkStatus struct {
	Name         string `json:"name" yaml:"name"`
	Direction    string `json:"direction" yaml:"direction"`
	Version      string `json:"encoding" yaml:"encoding"`
	LaneRateKbps uint64 `json:"laneRateKbps" yaml:"laneRateKbps"`
	Word         uint16 `json:"status" yaml:"status"`
	Up           bool   `json:"up" yaml:"up"`
	State        string `json:"state" yaml:"state"`
}

type Status struct {
	Name        string       `json:"name" yaml:"name"`
	Chip        string       `json:"chip" yaml:"chip"`
	Revision    uint8        `json:"revision" yaml:"revision"`
	ChainTop    bool         `json:"chainTop" yaml:"chainTop"`
	Initialized bool         `json:"initialized" yaml:"initialized"`
	Links       []LinkStatus `json:"links" yaml:"links"`
}

// LinkStatus reads and classifies the link status once
func (d *Device) LinkStatus(name string) (LinkStatus, error) {
	l, ok := d.links[name]
	if !ok {
		return LinkStatus{}, ErrLinkNotFound{Device: d.cfg.Name, Link: name}
	}
	word, err := d.readLinkStatus(l)
	if err != nil {
		return LinkStatus{}, err
	}
	v := jesd.ClassifyLink(l, word)
	return LinkStatus{
		Name:         name,
		Direction:    l.Direction.String(),
		Version:      l.Version.Encoding().String(),
		LaneRateKbps: d.laneRates[name],
		Word:         word,
		Up:           v.Pass,
		State:        v.State,
	}, nil
}

func (d *Device) Status() (*Status, error) {
	s := &Status{
		Name:        d.cfg.Name,
		Chip:        fmt.Sprintf("0x%04x", d.chip.ProdID),
		Revision:    d.chip.Revision,
		ChainTop:    d.chainTop,
		Initialized: d.initialized,
	}
	for _, name := range d.names {
		ls, err := d.LinkStatus(name)
		if err != nil {
			return nil, err
		}
		s.Links = append(s.Links, ls)
	}
	return s, nil
}

// LaneRates returns the lane rates computed at the last LinkParamsInit
func (d *Device) LaneRates() map[string]uint64 {
	rates := make(map[string]uint64, len(d.laneRates))
	for k, v := range d.laneRates {
		rates[k] = v
	}
	return rates
}

func sortedNames(links map[string]*jesd.Link) []string {
	names := make([]string, 0, len(links))
	for name := range links {
		names = append(names, name)
	}
	// tx links before rx links, then by index
	sort.Slice(names, func(i, j int) bool {
		a, b := links[names[i]], links[names[j]]
		if a.Direction != b.Direction {
			return a.Direction < b.Direction
		}
		return a.Index < b.Index
	})
	return names
}
