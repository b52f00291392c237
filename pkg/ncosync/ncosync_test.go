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

package ncosync

import (
	"errors"
	"testing"

	"jinr.ru/greenlab/go-mxfe/pkg/errs"
	"jinr.ru/greenlab/go-mxfe/pkg/regmap"
)

type write struct {
	field string
	value uint32
}

// recorder records field writes in order and can fail one field
type recorder struct {
	writes []write
	failOn string
}

func (r *recorder) RegGet(addr uint16) (uint8, error) { return 0, nil }
func (r *recorder) RegSet(addr uint16, val uint8) error { return nil }

func (r *recorder) GetField(f regmap.Field) (uint32, error) {
	return 0, nil
}

func (r *recorder) SetField(f regmap.Field, val uint32) error {
	if f.Name == r.failOn {
		return errors.New("nack")
	}
	r.writes = append(r.writes, write{f.Name, val})
	return nil
}

func (r *recorder) index(field string) int {
	for i, w := range r.writes {
		if w.field == field {
			return i
		}
	}
	return -1
}

func TestRunOrdering(t *testing.T) {
	for _, master := range []bool{true, false} {
		for _, trig := range []TriggerSource{TriggerSysref, TriggerLmfcRising, TriggerLmfcFalling} {
			for gpio := uint8(0); gpio <= regmap.GpioMax; gpio++ {
				r := &recorder{}
				s := Session{IsMaster: master, Trigger: trig, GPIO: gpio, ExtraLmfc: 2}
				if err := Run(r, s); err != nil {
					t.Fatalf("%+v: %v", s, err)
				}
				first := r.writes[0]
				if first.field != "MAIN_AUTO_CLK_GATING" || first.value != regmap.ClkGatingDisabled {
					t.Errorf("%+v: first write %+v", s, first)
				}
				trigIdx := r.index("NCO_SYNC_MS_TRIG")
				if master && trigIdx != len(r.writes)-1 {
					t.Errorf("%+v: master trigger at %d of %d writes", s, trigIdx, len(r.writes))
				}
				if !master && trigIdx != -1 {
					t.Errorf("%+v: slave wrote the master trigger", s)
				}
				gpioWrite := r.writes[r.index(regmap.GpioCfg(gpio).Name)]
				wantMode := uint32(regmap.GpioModeSyncIn)
				if master {
					wantMode = regmap.GpioModeSyncOut
				}
				if gpioWrite.value != wantMode {
					t.Errorf("%+v: gpio mode %d", s, gpioWrite.value)
				}
			}
		}
	}
}

func TestRunSequence(t *testing.T) {
	r := &recorder{}
	if err := Run(r, Session{IsMaster: true, Trigger: TriggerLmfcRising, GPIO: 1, ExtraLmfc: 3}); err != nil {
		t.Fatal(err)
	}
	want := []write{
		{"MAIN_AUTO_CLK_GATING", 7},
		{"NCO_SYNC_MS_EXTRA_LMFC_NUM", 3},
		{"NCO_SYNC_MS_TRIG_SOURCE", 1},
		{"NCO_SYNC_MS_MODE", 1},
		{"GPIO_CFG1", 10},
		{"NCO_SYNC_RESET_VIA_SYSREF", 0},
		{"NCO_SYNC_RESET_VIA_SYSREF", 1},
		{"CDDC_SYNC_EN", 0},
		{"CDDC_SYNC_EN", 0x0F},
		{"FDDC_SYNC_EN", 0},
		{"FDDC_SYNC_EN", 0xFF},
		{"NCO_SYNC_MS_TRIG", 1},
	}
	if len(r.writes) != len(want) {
		t.Fatalf("writes = %+v", r.writes)
	}
	for i := range want {
		if r.writes[i] != want[i] {
			t.Errorf("write %d = %+v, want %+v", i, r.writes[i], want[i])
		}
	}
}

func TestRunAbortsOnFailure(t *testing.T) {
	r := &recorder{failOn: "CDDC_SYNC_EN"}
	err := Run(r, Session{IsMaster: true, Trigger: TriggerSysref})
	var sf errs.ErrSyncFailed
	if !errors.As(err, &sf) || sf.Step != "coarse DDC sync disable" {
		t.Fatalf("expected ErrSyncFailed at coarse sync, got %v", err)
	}
	if r.index("NCO_SYNC_MS_TRIG") != -1 {
		t.Error("master trigger fired after a failed step")
	}
}

func TestRunRejectsBadSession(t *testing.T) {
	var ip errs.ErrInvalidParameter
	for _, s := range []Session{
		{GPIO: 6},
		{ExtraLmfc: 16},
		{Trigger: 3},
	} {
		r := &recorder{}
		if err := Run(r, s); !errors.As(err, &ip) {
			t.Errorf("%+v: expected ErrInvalidParameter, got %v", s, err)
		}
		if len(r.writes) != 0 {
			t.Errorf("%+v: %d writes before validation", s, len(r.writes))
		}
	}
}

func TestRunDirectSysref(t *testing.T) {
	r := &recorder{}
	if err := RunDirectSysref(r); err != nil {
		t.Fatal(err)
	}
	if r.writes[0] != (write{"NCO_SYNC_MS_TRIG_SOURCE", 0}) {
		t.Errorf("first write %+v", r.writes[0])
	}
	if r.index("NCO_SYNC_MS_TRIG") != -1 || r.index("NCO_SYNC_MS_MODE") != -1 {
		t.Error("direct mode ran the handshake")
	}
	last := r.writes[len(r.writes)-1]
	if last != (write{"FDDC_SYNC_EN", 0xFF}) {
		t.Errorf("last write %+v", last)
	}
}

func TestParseTriggerSource(t *testing.T) {
	for in, want := range map[string]TriggerSource{"": TriggerLmfcRising, "sysref": TriggerSysref, "lmfc_falling": TriggerLmfcFalling} {
		if got, err := ParseTriggerSource(in); err != nil || got != want {
			t.Errorf("ParseTriggerSource(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseTriggerSource("gpio"); err == nil {
		t.Error("unknown trigger source accepted")
	}
}
