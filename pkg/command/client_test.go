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

package command

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"jinr.ru/greenlab/go-mxfe/pkg/config"
	"jinr.ru/greenlab/go-mxfe/pkg/srv/control"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "state.db")
	cfg.PollIntervalMs = 1
	return cfg
}

func newTestClient(t *testing.T) *ApiClient {
	t.Helper()
	cfg := testConfig(t)
	sys, err := control.NewSystem(cfg, nil)
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	t.Cleanup(func() { sys.Close() })
	api, err := control.NewApiServer(context.Background(), cfg, sys)
	if err != nil {
		t.Fatalf("NewApiServer: %v", err)
	}
	ts := httptest.NewServer(api.Handler())
	t.Cleanup(ts.Close)

	c := NewApiClient(cfg)
	c.ApiPrefix = ts.URL + "/api"
	return c
}

func TestClientBringUp(t *testing.T) {
	c := newTestClient(t)

	infos, err := c.Devices()
	if err != nil || len(infos) != 1 {
		t.Fatalf("Devices = %v, %v", infos, err)
	}
	report, err := c.BringUp(config.DefaultDeviceName)
	if err != nil {
		t.Fatalf("BringUp: %v", err)
	}
	if report.Attempts != 1 {
		t.Errorf("attempts = %d", report.Attempts)
	}
	st, err := c.Status(config.DefaultDeviceName)
	if err != nil || !st.Initialized {
		t.Fatalf("Status = %+v, %v", st, err)
	}
	ls, err := c.LinkStatus(config.DefaultDeviceName, "rx0")
	if err != nil || !ls.Up {
		t.Errorf("LinkStatus = %+v, %v", ls, err)
	}
	if err := c.Teardown(config.DefaultDeviceName); err != nil {
		t.Errorf("Teardown: %v", err)
	}
}

func TestClientRegisters(t *testing.T) {
	c := newTestClient(t)

	if err := c.RegWrite(config.DefaultDeviceName, "0x0100", "0x33"); err != nil {
		t.Fatalf("RegWrite: %v", err)
	}
	v, err := c.RegRead(config.DefaultDeviceName, "0x0100")
	if err != nil || v != "0x33" {
		t.Errorf("RegRead = %s, %v", v, err)
	}

	var apiErr ErrApi
	if _, err := c.RegRead("nope", "0x0100"); !errors.As(err, &apiErr) {
		t.Errorf("RegRead unknown device error = %v", err)
	}
	// without state there is no shadow to read
	if _, err := c.RegReadAll(config.DefaultDeviceName); !errors.As(err, &apiErr) {
		t.Errorf("RegReadAll error = %v", err)
	}
}

func TestLocalBringUp(t *testing.T) {
	cfg := testConfig(t)
	report, err := BringUp(context.Background(), cfg, "")
	if err != nil {
		t.Fatalf("BringUp: %v", err)
	}
	if len(report.Devices) != 1 || !report.Devices[0].Initialized {
		t.Errorf("report = %+v", report)
	}
}
