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

package hal

import (
	"sync"

	"jinr.ru/greenlab/go-mxfe/pkg/hal/ifc"
	"jinr.ru/greenlab/go-mxfe/pkg/regmap"
)

// Sim is an in-memory register file. It stands in for the chip when no
// board is attached and in tests.
type Sim struct {
	mu        sync.Mutex
	regs      map[uint16]uint8
	selfClear map[uint16]uint8
	onWrite   map[uint16]func(val uint8)
	fail      map[uint16]error
	reads     int
	writes    int
}

var _ ifc.Bus = &Sim{}

func NewSim() *Sim {
	return &Sim{
		regs:      make(map[uint16]uint8),
		selfClear: make(map[uint16]uint8),
		onWrite:   make(map[uint16]func(val uint8)),
		fail:      make(map[uint16]error),
	}
}

func (s *Sim) RegGet(addr uint16) (uint8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[addr]; err != nil {
		return 0, err
	}
	s.reads++
	return s.regs[addr], nil
}

func (s *Sim) RegSet(addr uint16, val uint8) error {
	s.mu.Lock()
	if err := s.fail[addr]; err != nil {
		s.mu.Unlock()
		return err
	}
	s.writes++
	s.regs[addr] = val &^ s.selfClear[addr]
	hook := s.onWrite[addr]
	s.mu.Unlock()
	if hook != nil {
		hook(val)
	}
	return nil
}

// Peek returns the register value without counting the access
func (s *Sim) Peek(addr uint16) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[addr]
}

// Poke sets the register value bypassing hooks and self clearing bits
func (s *Sim) Poke(addr uint16, val uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[addr] = val
}

// PokeField sets a field bypassing hooks
func (s *Sim) PokeField(f regmap.Field, val uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	shifted := uint64(val&f.Mask()) << f.Offset
	mask := uint64(f.Mask()) << f.Offset
	for i := 0; i < f.Bytes(); i++ {
		addr := f.Addr + uint16(i)
		m := uint8(mask >> (8 * i))
		s.regs[addr] = s.regs[addr]&^m | uint8(shifted>>(8*i))&m
	}
}

// SelfClear marks bits of the register that read back as zero after a
// write, like trigger and arm bits do on the chip.
func (s *Sim) SelfClear(addr uint16, mask uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfClear[addr] |= mask
}

// OnWrite installs a hook called after every write to addr
func (s *Sim) OnWrite(addr uint16, fn func(val uint8)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWrite[addr] = fn
}

// Fail makes every access to addr return err. A nil err clears it.
func (s *Sim) Fail(addr uint16, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, addr)
		return
	}
	s.fail[addr] = err
}

// Counters returns the number of successful reads and writes
func (s *Sim) Counters() (reads, writes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads, s.writes
}

// NewSimChip returns a register file preset the way a healthy chip with
// locked PLLs, captured SYSREF and trained links reads back.
func NewSimChip(prodID uint16, revision uint8) *Sim {
	s := NewSim()
	s.Poke(regmap.RegChipProdIDLo, uint8(prodID))
	s.Poke(regmap.RegChipProdIDHi, uint8(prodID>>8))
	s.Poke(regmap.RegChipRevision, revision)
	s.Poke(regmap.RegClkPllStatus, regmap.ClkPllLockMask)
	s.SelfClear(regmap.RegSpiConfig, regmap.SpiSoftReset)

	for alias, val := range map[regmap.FieldAlias]uint32{
		regmap.FieldSerdesPllLocked:     1,
		regmap.FieldSysrefCaptured:      1,
		regmap.FieldJrxLanesReady:       0xff,
		regmap.FieldJrx204CState:        regmap.State204CLinkGood,
		regmap.FieldJtxQbfState:         regmap.QbfStateData,
		regmap.FieldJtxSyncN:            1,
		regmap.FieldJtxPllLocked:        1,
		regmap.FieldJtxPhaseEstablished: 1,
		regmap.FieldCal204CDone:         1,
	} {
		s.PokeField(regmap.F(alias), val)
	}

	for _, alias := range []regmap.FieldAlias{
		regmap.FieldNcoSyncMsTrig,
		regmap.FieldSysrefArm,
		regmap.FieldCal204CStart,
	} {
		f := regmap.F(alias)
		s.SelfClear(f.Addr, uint8(f.Mask()<<f.Offset))
	}
	return s
}
