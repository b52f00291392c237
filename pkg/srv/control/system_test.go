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
	"errors"
	"path/filepath"
	"testing"

	"jinr.ru/greenlab/go-mxfe/pkg/config"
	"jinr.ru/greenlab/go-mxfe/pkg/regmap"
	"jinr.ru/greenlab/go-mxfe/pkg/state"
)

func testConfig(names ...string) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Devices = nil
	for _, name := range names {
		cfg.Devices = append(cfg.Devices, config.NewDefaultDevice(name))
	}
	cfg.PollIntervalMs = 1
	return cfg
}

func newTestSystem(t *testing.T, cfg *config.Config) (*System, *state.State) {
	t.Helper()
	st, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	sys, err := NewSystem(cfg, st)
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	t.Cleanup(func() { sys.Close() })
	return sys, st
}

func TestSystemChainBringUp(t *testing.T) {
	sys, st := newTestSystem(t, testConfig("top", "bottom"))

	if !sys.devices[0].ChainTop() || sys.devices[1].ChainTop() {
		t.Fatal("first configured device must be the only chain top")
	}

	report, err := sys.BringUp(context.Background())
	if err != nil {
		t.Fatalf("BringUp: %v", err)
	}
	if report.Attempts != 1 || len(report.Devices) != 2 {
		t.Fatalf("report = %+v", report)
	}
	for _, d := range report.Devices {
		if !d.Initialized {
			t.Errorf("%s not initialized", d.Name)
		}
		for _, l := range d.Links {
			if !l.Up {
				t.Errorf("%s %s is %s", d.Name, l.Name, l.State)
			}
		}
	}

	rec, err := st.GetRecord("bottom")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if !rec.Initialized || rec.Attempts != 1 || rec.LaneRates["rx0"] != 16_500_000 {
		t.Errorf("record = %+v", rec)
	}
}

func TestSystemShadowAndRegisters(t *testing.T) {
	sys, _ := newTestSystem(t, testConfig("mxfe0"))

	// soft reset and chip identification already went through the shadow
	regs, err := sys.Shadow("mxfe0")
	if err != nil {
		t.Fatalf("Shadow: %v", err)
	}
	if len(regs) == 0 {
		t.Fatal("empty shadow after device init")
	}

	lo, err := sys.RegRead("mxfe0", regmap.RegChipProdIDLo)
	if err != nil || lo != uint8(SimProdID&0xff) {
		t.Fatalf("RegRead = 0x%02x, %v", lo, err)
	}
	if err := sys.RegWrite("mxfe0", 0x0100, 0x42); err != nil {
		t.Fatalf("RegWrite: %v", err)
	}
	v, err := sys.RegRead("mxfe0", 0x0100)
	if err != nil || v != 0x42 {
		t.Errorf("read back 0x%02x, %v", v, err)
	}
}

func TestSystemTeardownDevice(t *testing.T) {
	sys, _ := newTestSystem(t, testConfig("mxfe0"))
	ctx := context.Background()

	if _, err := sys.BringUpDevice(ctx, "mxfe0"); err != nil {
		t.Fatalf("BringUpDevice: %v", err)
	}
	if err := sys.TeardownDevice(ctx, "mxfe0"); err != nil {
		t.Fatalf("TeardownDevice: %v", err)
	}
	st, err := sys.Status("mxfe0")
	if err != nil {
		t.Fatal(err)
	}
	if st.Initialized {
		t.Error("device still initialized after teardown")
	}
}

func TestSystemUnknownDevice(t *testing.T) {
	sys, _ := newTestSystem(t, testConfig("mxfe0"))

	var nf ErrDeviceNotFound
	if _, err := sys.BringUpDevice(context.Background(), "nope"); !errors.As(err, &nf) {
		t.Errorf("BringUpDevice error = %v", err)
	}
	if _, err := sys.RegRead("nope", 0); !errors.As(err, &nf) {
		t.Errorf("RegRead error = %v", err)
	}
}

func TestSystemWithoutState(t *testing.T) {
	sys, err := NewSystem(testConfig("mxfe0"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer sys.Close()

	if _, err := sys.BringUp(context.Background()); err != nil {
		t.Fatalf("BringUp: %v", err)
	}
	var ns ErrNoState
	if _, err := sys.Record("mxfe0"); !errors.As(err, &ns) {
		t.Errorf("Record error = %v", err)
	}
}
