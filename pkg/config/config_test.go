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

package config

import (
	"errors"
	"path/filepath"
	"testing"

	"jinr.ru/greenlab/go-mxfe/pkg/errs"
)

func TestPersistAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", ConfigFile)
	cfg := NewDefaultConfig()
	cfg.SetPath(path)
	cfg.Devices[0].Sync.GPIO = 4
	if err := cfg.Persist(false); err != nil {
		t.Fatal(err)
	}

	var exists ErrConfigFileExists
	if err := cfg.Persist(false); !errors.As(err, &exists) {
		t.Errorf("expected ErrConfigFileExists, got %v", err)
	}
	if err := cfg.Persist(true); err != nil {
		t.Errorf("overwrite: %v", err)
	}

	loaded := &Config{}
	loaded.SetPath(path)
	if err := loaded.Load(); err != nil {
		t.Fatal(err)
	}
	if err := loaded.Validate(); err != nil {
		t.Fatalf("default config does not validate: %v", err)
	}
	d, err := loaded.Device(DefaultDeviceName)
	if err != nil {
		t.Fatal(err)
	}
	if d.Sync.GPIO != 4 || d.DacHz != DefaultDacHz {
		t.Errorf("device = %+v", d)
	}
	if d.TxLink.L != 8 || d.TxLink.NP != 16 || len(d.RxLinks) != 1 || d.RxLinks[0].ConverterSelect[7] != 7 {
		t.Errorf("links lost in round trip: %+v %+v", d.TxLink, d.RxLinks)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(c *Config)
	}{
		{"no devices", func(c *Config) { c.Devices = nil }},
		{"zero retries", func(c *Config) { c.Retries = 0 }},
		{"duplicate name", func(c *Config) { c.Devices = append(c.Devices, NewDefaultDevice(DefaultDeviceName)) }},
		{"unknown transport", func(c *Config) { c.Devices[0].Transport = "spidev" }},
		{"udp without address", func(c *Config) { c.Devices[0].Transport = TransportUDP }},
		{"tx link without datapath", func(c *Config) { c.Devices[0].Tx = nil }},
		{"dual link with one link", func(c *Config) { c.Devices[0].RxLinks[0].DualLink = true }},
		{"sync gpio out of range", func(c *Config) { c.Devices[0].Sync.GPIO = 9 }},
		{"no links", func(c *Config) {
			d := c.Devices[0]
			d.Tx, d.TxLink, d.Rx, d.RxLinks = nil, nil, nil, nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewDefaultConfig()
			tt.mod(c)
			var ip errs.ErrInvalidParameter
			if err := c.Validate(); !errors.As(err, &ip) {
				t.Errorf("expected ErrInvalidParameter, got %v", err)
			}
		})
	}
}
