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

package state

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"jinr.ru/greenlab/go-mxfe/pkg/hal/ifc"
	"jinr.ru/greenlab/go-mxfe/pkg/log"
)

const (
	RegBucketPrefix   = "reg_"
	RecordBucket      = "bringup"
	CalibrationBucket = "calibration"
)

var ErrNotFound = errors.New("Key not found")

type Reg struct {
	Addr  uint16 `json:"addr"`
	Value uint8  `json:"value"`
}

// Record is the outcome of the last bring-up of a device
type Record struct {
	Initialized bool              `json:"initialized"`
	Attempts    int               `json:"attempts"`
	LastError   string            `json:"lastError,omitempty"`
	Time        time.Time         `json:"time"`
	LaneRates   map[string]uint64 `json:"laneRatesKbps,omitempty"`
}

// State keeps the register shadow of every device, bring-up records and
// the lane rates links were last calibrated at.
type State struct {
	DB *bbolt.DB
}

func Open(path string, devices ...string) (*State, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err = db.Update(func(tx *bbolt.Tx) error {
		names := []string{RecordBucket, CalibrationBucket}
		for _, device := range devices {
			names = append(names, regBucketName(device))
		}
		for _, name := range names {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &State{DB: db}, nil
}

func (s *State) Close() error {
	return s.DB.Close()
}

func regBucketName(device string) string {
	return fmt.Sprintf("%s%s", RegBucketPrefix, device)
}

func uint16ToByte(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func uint64ToByte(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func (s *State) SetReg(device string, reg Reg) error {
	log.Debug("Shadow %s: addr 0x%04x = 0x%02x", device, reg.Addr, reg.Value)
	return s.DB.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(regBucketName(device)))
		if err != nil {
			return err
		}
		return b.Put(uint16ToByte(reg.Addr), []byte{reg.Value})
	})
}

func (s *State) GetReg(device string, addr uint16) (Reg, error) {
	reg := Reg{Addr: addr}
	err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(regBucketName(device)))
		if b == nil {
			return fmt.Errorf("Bucket not found: %s", regBucketName(device))
		}
		v := b.Get(uint16ToByte(addr))
		if v == nil {
			return fmt.Errorf("%w: 0x%04x", ErrNotFound, addr)
		}
		reg.Value = v[0]
		return nil
	})
	return reg, err
}

// GetRegAll returns the shadow ordered by address
func (s *State) GetRegAll(device string) ([]Reg, error) {
	var regs []Reg
	err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(regBucketName(device)))
		if b == nil {
			return fmt.Errorf("Bucket not found: %s", regBucketName(device))
		}
		return b.ForEach(func(k, v []byte) error {
			regs = append(regs, Reg{Addr: binary.BigEndian.Uint16(k), Value: v[0]})
			return nil
		})
	})
	return regs, err
}

func (s *State) PutRecord(device string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.DB.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(RecordBucket)).Put([]byte(device), data)
	})
}

func (s *State) GetRecord(device string) (*Record, error) {
	var rec Record
	err := s.DB.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(RecordBucket)).Get([]byte(device))
		if v == nil {
			return fmt.Errorf("%w: record %s", ErrNotFound, device)
		}
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func calibrationKey(device, link string) []byte {
	return []byte(device + "/" + link)
}

// CalibratedRate returns the lane rate the link was last calibrated at
func (s *State) CalibratedRate(device, link string) (uint64, bool, error) {
	var rate uint64
	var found bool
	err := s.DB.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(CalibrationBucket)).Get(calibrationKey(device, link))
		if v != nil {
			rate = binary.BigEndian.Uint64(v)
			found = true
		}
		return nil
	})
	return rate, found, err
}

func (s *State) SetCalibratedRate(device, link string, kbps uint64) error {
	return s.DB.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(CalibrationBucket)).Put(calibrationKey(device, link), uint64ToByte(kbps))
	})
}

// Calibration binds the calibration memory to one device
type Calibration struct {
	State  *State
	Device string
}

func (c Calibration) CalibratedRate(link string) (uint64, bool, error) {
	return c.State.CalibratedRate(c.Device, link)
}

func (c Calibration) SetCalibratedRate(link string, kbps uint64) error {
	return c.State.SetCalibratedRate(c.Device, link, kbps)
}

// ShadowBus mirrors every successful register access into the device
// bucket so the last known register image survives restarts.
type ShadowBus struct {
	ifc.Bus
	State  *State
	Device string
}

func (b *ShadowBus) RegGet(addr uint16) (uint8, error) {
	val, err := b.Bus.RegGet(addr)
	if err != nil {
		return 0, err
	}
	if err := b.State.SetReg(b.Device, Reg{Addr: addr, Value: val}); err != nil {
		log.Warning("Shadow %s: %s", b.Device, err)
	}
	return val, nil
}

func (b *ShadowBus) RegSet(addr uint16, val uint8) error {
	if err := b.Bus.RegSet(addr, val); err != nil {
		return err
	}
	if err := b.State.SetReg(b.Device, Reg{Addr: addr, Value: val}); err != nil {
		log.Warning("Shadow %s: %s", b.Device, err)
	}
	return nil
}
