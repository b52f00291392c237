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
	"errors"
	"path/filepath"
	"testing"
	"time"

	"jinr.ru/greenlab/go-mxfe/pkg/hal"
)

func openTemp(t *testing.T) *State {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"), "mxfe0")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestShadowBus(t *testing.T) {
	s := openTemp(t)
	sim := hal.NewSim()
	sim.Poke(0x0004, 0x81)
	bus := &ShadowBus{Bus: sim, State: s, Device: "mxfe0"}

	if err := bus.RegSet(0x00CC, 0x15); err != nil {
		t.Fatal(err)
	}
	if _, err := bus.RegGet(0x0004); err != nil {
		t.Fatal(err)
	}

	reg, err := s.GetReg("mxfe0", 0x00CC)
	if err != nil || reg.Value != 0x15 {
		t.Fatalf("GetReg = %+v, %v", reg, err)
	}
	regs, err := s.GetRegAll("mxfe0")
	if err != nil {
		t.Fatal(err)
	}
	if len(regs) != 2 || regs[0].Addr != 0x0004 || regs[1].Addr != 0x00CC {
		t.Errorf("GetRegAll = %+v", regs)
	}

	if _, err := s.GetReg("mxfe0", 0x1234); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestShadowBusSkipsFailedWrite(t *testing.T) {
	s := openTemp(t)
	sim := hal.NewSim()
	sim.Fail(0x10, errors.New("nack"))
	bus := &ShadowBus{Bus: sim, State: s, Device: "mxfe0"}

	if err := bus.RegSet(0x10, 1); err == nil {
		t.Fatal("expected error")
	}
	if _, err := s.GetReg("mxfe0", 0x10); !errors.Is(err, ErrNotFound) {
		t.Errorf("failed write reached the shadow: %v", err)
	}
}

func TestRecordsAndCalibration(t *testing.T) {
	s := openTemp(t)
	rec := Record{Initialized: true, Attempts: 2, Time: time.Unix(100, 0).UTC(), LaneRates: map[string]uint64{"tx0": 24750000}}
	if err := s.PutRecord("mxfe0", rec); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetRecord("mxfe0")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Initialized || got.Attempts != 2 || got.LaneRates["tx0"] != 24750000 {
		t.Errorf("record = %+v", got)
	}

	cal := Calibration{State: s, Device: "mxfe0"}
	if _, found, err := cal.CalibratedRate("tx0"); err != nil || found {
		t.Fatalf("unexpected calibration entry: %v %v", found, err)
	}
	if err := cal.SetCalibratedRate("tx0", 24750000); err != nil {
		t.Fatal(err)
	}
	rate, found, err := cal.CalibratedRate("tx0")
	if err != nil || !found || rate != 24750000 {
		t.Errorf("CalibratedRate = %d %v %v", rate, found, err)
	}
}
