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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"jinr.ru/greenlab/go-mxfe/pkg/device"
	"jinr.ru/greenlab/go-mxfe/pkg/srv/control/ifc"
)

func newTestApi(t *testing.T, sys *System) *httptest.Server {
	t.Helper()
	api, err := NewApiServer(context.Background(), sys.cfg, sys)
	if err != nil {
		t.Fatalf("NewApiServer: %v", err)
	}
	ts := httptest.NewServer(api.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestApiBringUpAndStatus(t *testing.T) {
	sys, _ := newTestSystem(t, testConfig("mxfe0"))
	ts := newTestApi(t, sys)

	var infos []DeviceInfo
	if code := do(t, "GET", ts.URL+"/api/device", nil, &infos); code != http.StatusOK {
		t.Fatalf("list: %d", code)
	}
	if len(infos) != 1 || infos[0].Name != "mxfe0" || !infos[0].ChainTop {
		t.Fatalf("devices = %+v", infos)
	}

	var report ifc.Report
	if code := do(t, "POST", ts.URL+"/api/device/mxfe0/bringup", nil, &report); code != http.StatusOK {
		t.Fatalf("bringup: %d", code)
	}
	if report.Attempts != 1 || len(report.Devices) != 1 || !report.Devices[0].Initialized {
		t.Fatalf("report = %+v", report)
	}

	var ls device.LinkStatus
	if code := do(t, "GET", ts.URL+"/api/link/mxfe0/tx0", nil, &ls); code != http.StatusOK {
		t.Fatalf("link: %d", code)
	}
	if !ls.Up || ls.LaneRateKbps != 8_250_000 {
		t.Errorf("link status = %+v", ls)
	}

	if code := do(t, "POST", ts.URL+"/api/device/mxfe0/teardown", nil, nil); code != http.StatusOK {
		t.Fatalf("teardown: %d", code)
	}
	var st device.Status
	if code := do(t, "GET", ts.URL+"/api/device/mxfe0", nil, &st); code != http.StatusOK {
		t.Fatalf("status: %d", code)
	}
	if st.Initialized {
		t.Error("initialized after teardown")
	}
}

func TestApiChainBringUpFailure(t *testing.T) {
	cfg := testConfig("mxfe0")
	cfg.Devices[0].Rx.ChannelEnable = nil
	sys, _ := newTestSystem(t, cfg)
	ts := newTestApi(t, sys)

	resp, err := http.Post(ts.URL+"/api/bringup", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status code %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	var report ifc.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Attempts != 1 || report.Error == "" {
		t.Errorf("report = %+v", report)
	}
}

func TestApiRegisters(t *testing.T) {
	sys, _ := newTestSystem(t, testConfig("mxfe0"))
	ts := newTestApi(t, sys)

	if code := do(t, "POST", ts.URL+"/api/reg/w/mxfe0", &RegHex{Addr: "0x0100", Value: "0x5a"}, nil); code != http.StatusOK {
		t.Fatalf("write: %d", code)
	}
	var reg RegHex
	if code := do(t, "GET", ts.URL+"/api/reg/r/mxfe0/0x0100", nil, &reg); code != http.StatusOK {
		t.Fatalf("read: %d", code)
	}
	if reg.Value != "0x5a" {
		t.Errorf("value = %s, want 0x5a", reg.Value)
	}

	var all []RegHex
	if code := do(t, "GET", ts.URL+"/api/reg/r/mxfe0", nil, &all); code != http.StatusOK {
		t.Fatalf("read all: %d", code)
	}
	found := false
	for _, r := range all {
		if r.Addr == "0x0100" && r.Value == "0x5a" {
			found = true
		}
	}
	if !found {
		t.Error("written register missing from the shadow")
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		code   int
	}{
		{"unknown device", "GET", "/api/reg/r/nope/0x0100", nil, http.StatusNotFound},
		{"unknown link", "GET", "/api/link/mxfe0/tx7", nil, http.StatusNotFound},
		{"value too wide", "POST", "/api/reg/w/mxfe0", &RegHex{Addr: "0x0100", Value: "0x1ff"}, http.StatusBadRequest},
		{"address not hex", "GET", "/api/reg/r/mxfe0/100", nil, http.StatusNotFound},
		{"no record yet", "GET", "/api/device/mxfe0/record", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := do(t, tt.method, ts.URL+tt.path, tt.body, nil); code != tt.code {
				t.Errorf("code %d, want %d", code, tt.code)
			}
		})
	}
}

func TestApiDocs(t *testing.T) {
	sys, _ := newTestSystem(t, testConfig("mxfe0"))
	ts := newTestApi(t, sys)

	var doc map[string]interface{}
	if code := do(t, "GET", ts.URL+"/api/swagger.json", nil, &doc); code != http.StatusOK {
		t.Fatalf("swagger.json: %d", code)
	}
	if doc["swagger"] != "2.0" {
		t.Errorf("swagger = %v", doc["swagger"])
	}

	resp, err := http.Get(ts.URL + "/api/docs")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var page bytes.Buffer
	page.ReadFrom(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(page.String(), "/api/swagger.json") {
		t.Errorf("docs page: %d", resp.StatusCode)
	}
}

func TestDocsDescribeRoutes(t *testing.T) {
	doc, err := LoadDocs()
	if err != nil {
		t.Fatalf("LoadDocs: %v", err)
	}
	for _, path := range []string{"/device", "/device/{device}/bringup", "/bringup", "/link/{device}/{link}", "/reg/w/{device}"} {
		if _, ok := doc.Spec().Paths.Paths[path]; !ok {
			t.Errorf("path %s not documented", path)
		}
	}
}
