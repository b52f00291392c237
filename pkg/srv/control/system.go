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

package control

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"jinr.ru/greenlab/go-mxfe/pkg/config"
	"jinr.ru/greenlab/go-mxfe/pkg/device"
	"jinr.ru/greenlab/go-mxfe/pkg/hal"
	halifc "jinr.ru/greenlab/go-mxfe/pkg/hal/ifc"
	"jinr.ru/greenlab/go-mxfe/pkg/jesd"
	"jinr.ru/greenlab/go-mxfe/pkg/jesd204"
	"jinr.ru/greenlab/go-mxfe/pkg/log"
	"jinr.ru/greenlab/go-mxfe/pkg/regmap"
	"jinr.ru/greenlab/go-mxfe/pkg/srv/control/ifc"
	"jinr.ru/greenlab/go-mxfe/pkg/state"
)

const (
	// SimProdID and SimRevision is what simulated chips report
	SimProdID   = regmap.ProdIDAD9081
	SimRevision = 3
)

type System struct {
	cfg   *config.Config
	state *state.State

	devices []*device.Device
	byName  map[string]*device.Device
	locks   map[string]*sync.Mutex
	closers []io.Closer

	chain  *jesd204.Topology
	single map[string]*jesd204.Topology
}

var _ ifc.System = &System{}

// NewSystem opens a register bus for every configured device and prepares
// the chain. The first device is the chain top. State may be nil, then
// nothing is persisted and calibration is remembered in memory only.
func NewSystem(cfg *config.Config, st *state.State) (*System, error) {
	s := &System{
		cfg:    cfg,
		state:  st,
		byName: make(map[string]*device.Device),
		locks:  make(map[string]*sync.Mutex),
		single: make(map[string]*jesd204.Topology),
	}
	poller := jesd.Poller{
		Retries:  cfg.PollRetries,
		Interval: time.Duration(cfg.PollIntervalMs) * time.Millisecond,
	}

	var handlers []jesd204.Handler
	for i, dc := range cfg.Devices {
		bus, err := s.openBus(dc)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("device %s: %w", dc.Name, err)
		}
		opts := device.Options{
			ChainTop: i == 0,
			Poller:   poller,
		}
		if st != nil {
			bus = &state.ShadowBus{Bus: bus, State: st, Device: dc.Name}
			opts.Calibration = state.Calibration{State: st, Device: dc.Name}
		}
		d, err := device.New(dc, hal.NewFields(bus), opts)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("device %s: %w", dc.Name, err)
		}
		s.devices = append(s.devices, d)
		s.byName[d.Name()] = d
		s.locks[d.Name()] = &sync.Mutex{}
		s.single[d.Name()] = jesd204.NewTopology(cfg.Retries, d)
		handlers = append(handlers, d)
	}
	s.chain = jesd204.NewTopology(cfg.Retries, handlers...)
	return s, nil
}

func (s *System) openBus(dc *config.Device) (halifc.Bus, error) {
	switch dc.Transport {
	case config.TransportSim:
		log.Debug("Device %s: simulated chip", dc.Name)
		return hal.NewSimChip(SimProdID, SimRevision), nil
	case config.TransportUDP:
		timeout := time.Duration(s.cfg.BridgeTimeoutMs) * time.Millisecond
		b, err := hal.NewUDPBridge(dc.Address, timeout)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, b)
		return b, nil
	}
	return nil, fmt.Errorf("unknown transport %q", dc.Transport)
}

// Close releases the buses. The state is owned by the caller.
func (s *System) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

func (s *System) Devices() []*device.Device {
	return s.devices
}

func (s *System) Device(name string) (*device.Device, error) {
	d, ok := s.byName[name]
	if !ok {
		return nil, ErrDeviceNotFound{Name: name}
	}
	return d, nil
}

// lock takes the locks of the named devices in chain order
func (s *System) lock(names ...string) func() {
	var taken []*sync.Mutex
	for _, d := range s.devices {
		for _, name := range names {
			if d.Name() == name {
				m := s.locks[name]
				m.Lock()
				taken = append(taken, m)
			}
		}
	}
	return func() {
		for i := len(taken) - 1; i >= 0; i-- {
			taken[i].Unlock()
		}
	}
}

func (s *System) names() []string {
	names := make([]string, 0, len(s.devices))
	for _, d := range s.devices {
		names = append(names, d.Name())
	}
	return names
}

// BringUp runs the whole chain
func (s *System) BringUp(ctx context.Context) (*ifc.Report, error) {
	defer s.lock(s.names()...)()
	return s.run(ctx, s.chain, s.devices)
}

// BringUpDevice runs one device on its own, keeping its chain role
func (s *System) BringUpDevice(ctx context.Context, name string) (*ifc.Report, error) {
	d, err := s.Device(name)
	if err != nil {
		return nil, err
	}
	defer s.lock(name)()
	return s.run(ctx, s.single[name], []*device.Device{d})
}

func (s *System) run(ctx context.Context, topo *jesd204.Topology, devices []*device.Device) (*ifc.Report, error) {
	attempts, err := topo.BringUp(ctx)
	report := &ifc.Report{Attempts: attempts}
	if err != nil {
		report.Error = err.Error()
	}
	for _, d := range devices {
		s.putRecord(d, attempts, err)
		st, statusErr := d.Status()
		if statusErr != nil {
			log.Warning("Device %s: status after bring-up: %s", d.Name(), statusErr)
			continue
		}
		report.Devices = append(report.Devices, st)
	}
	return report, err
}

func (s *System) putRecord(d *device.Device, attempts int, err error) {
	if s.state == nil {
		return
	}
	rec := state.Record{
		Initialized: d.Initialized(),
		Attempts:    attempts,
		Time:        time.Now(),
		LaneRates:   d.LaneRates(),
	}
	if err != nil {
		rec.LastError = err.Error()
	}
	if putErr := s.state.PutRecord(d.Name(), rec); putErr != nil {
		log.Warning("Device %s: record: %s", d.Name(), putErr)
	}
}

func (s *System) TeardownDevice(ctx context.Context, name string) error {
	if _, err := s.Device(name); err != nil {
		return err
	}
	defer s.lock(name)()
	return s.single[name].Teardown(ctx)
}

func (s *System) Status(name string) (*device.Status, error) {
	d, err := s.Device(name)
	if err != nil {
		return nil, err
	}
	defer s.lock(name)()
	return d.Status()
}

func (s *System) LinkStatus(name, link string) (device.LinkStatus, error) {
	d, err := s.Device(name)
	if err != nil {
		return device.LinkStatus{}, err
	}
	defer s.lock(name)()
	return d.LinkStatus(link)
}

func (s *System) Record(name string) (*state.Record, error) {
	if _, err := s.Device(name); err != nil {
		return nil, err
	}
	if s.state == nil {
		return nil, ErrNoState{}
	}
	return s.state.GetRecord(name)
}

func (s *System) RegRead(name string, addr uint16) (uint8, error) {
	d, err := s.Device(name)
	if err != nil {
		return 0, err
	}
	defer s.lock(name)()
	return d.Regs().RegGet(addr)
}

func (s *System) RegWrite(name string, addr uint16, val uint8) error {
	d, err := s.Device(name)
	if err != nil {
		return err
	}
	defer s.lock(name)()
	return d.Regs().RegSet(addr, val)
}

// Shadow returns the last known register image of the device
func (s *System) Shadow(name string) ([]state.Reg, error) {
	if _, err := s.Device(name); err != nil {
		return nil, err
	}
	if s.state == nil {
		return nil, ErrNoState{}
	}
	return s.state.GetRegAll(name)
}
