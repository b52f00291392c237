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
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"

	"jinr.ru/greenlab/go-mxfe/pkg/errs"
	"jinr.ru/greenlab/go-mxfe/pkg/jesd"
	"jinr.ru/greenlab/go-mxfe/pkg/regmap"
)

// Sync holds the SYSREF and NCO synchronization settings of a device
type Sync struct {
	// DirectSysref resets the NCOs on SYSREF without the master/slave handshake
	DirectSysref     bool   `json:"directSysref"`
	GPIO             uint8  `json:"gpio"`
	Trigger          string `json:"trigger,omitempty"`
	ExtraLmfc        uint8  `json:"extraLmfc"`
	SysrefAverage    uint8  `json:"sysrefAverage"`
	SysrefCouplingAC bool   `json:"sysrefCouplingAC"`
	LmfcDelay        uint16 `json:"lmfcDelay"`
	PinsSwapped      bool   `json:"syncPinsSwapped,omitempty"`
	ResetSettleMs    int    `json:"resetSettleMs"`
}

type TxPath struct {
	MainInterpolation    uint32   `json:"mainInterpolation"`
	ChannelInterpolation uint32   `json:"channelInterpolation"`
	MainNcoShiftHz       []int64  `json:"mainNcoShiftHz,omitempty"`
	ChannelNcoShiftHz    []int64  `json:"channelNcoShiftHz,omitempty"`
	ChannelGain          []uint16 `json:"channelGain,omitempty"`
	DacCrossbar          []int    `json:"dacCrossbar,omitempty"`
}

type RxPath struct {
	MainDecimation       []uint32 `json:"mainDecimation"`
	ChannelDecimation    []uint32 `json:"channelDecimation"`
	MainNcoShiftHz       []int64  `json:"mainNcoShiftHz,omitempty"`
	ChannelNcoShiftHz    []int64  `json:"channelNcoShiftHz,omitempty"`
	MainEnable           []bool   `json:"mainEnable"`
	ChannelEnable        []bool   `json:"channelEnable"`
	MainComplexToReal    []bool   `json:"mainComplexToReal,omitempty"`
	ChannelComplexToReal []bool   `json:"channelComplexToReal,omitempty"`
	NyquistZone          []int    `json:"nyquistZone,omitempty"`
}

type Device struct {
	Name      string `json:"name"`
	Transport string `json:"transport"`
	Address   string `json:"address,omitempty"`
	DacHz     uint64 `json:"dacHz"`
	AdcHz     uint64 `json:"adcHz"`
	RefHz     uint64 `json:"refHz"`
	Sync      Sync   `json:"sync"`

	Tx      *TxPath            `json:"tx,omitempty"`
	TxLink  *jesd.LinkConfig   `json:"txLink,omitempty"`
	Rx      *RxPath            `json:"rx,omitempty"`
	RxLinks []*jesd.LinkConfig `json:"rxLinks,omitempty"`
}

type Config struct {
	IP              string    `json:"ip"`
	Port            int       `json:"port"`
	DBPath          string    `json:"dbPath"`
	LogLevel        string    `json:"logLevel"`
	Retries         int       `json:"retries"`
	PollRetries     int       `json:"pollRetries"`
	PollIntervalMs  int       `json:"pollIntervalMs"`
	BridgeTimeoutMs int       `json:"bridgeTimeoutMs"`
	Devices         []*Device `json:"devices"`
	filepath        string
}

func (c *Config) Path() string {
	return c.filepath
}

func (c *Config) SetPath(path string) {
	c.filepath = path
}

func (c *Config) Persist(overwrite bool) error {
	if _, err := os.Stat(c.filepath); err == nil && !overwrite {
		return ErrConfigFileExists{Path: c.filepath}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.filepath), 0755); err != nil {
		return err
	}
	return ioutil.WriteFile(c.filepath, data, 0644)
}

// Load reads the config file over the current values
func (c *Config) Load() error {
	data, err := ioutil.ReadFile(c.filepath)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%s: %w", c.filepath, err)
	}
	return nil
}

func (c *Config) Device(name string) (*Device, error) {
	for _, d := range c.Devices {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("Device %q not found in config", name)
}

func (c *Config) Validate() error {
	if len(c.Devices) == 0 {
		return errs.ErrInvalidParameter{What: "no devices configured"}
	}
	if c.Retries < 1 {
		return errs.ErrInvalidParameter{What: fmt.Sprintf("retries %d", c.Retries)}
	}
	if c.PollRetries < 0 || c.PollIntervalMs < 0 {
		return errs.ErrInvalidParameter{What: fmt.Sprintf("poll retries %d interval %d ms", c.PollRetries, c.PollIntervalMs)}
	}
	names := make(map[string]bool)
	for _, d := range c.Devices {
		if d.Name == "" || names[d.Name] {
			return errs.ErrInvalidParameter{What: fmt.Sprintf("device name %q empty or duplicated", d.Name)}
		}
		names[d.Name] = true
		if err := d.Validate(); err != nil {
			return fmt.Errorf("device %s: %w", d.Name, err)
		}
	}
	return nil
}

func (d *Device) Validate() error {
	switch d.Transport {
	case TransportSim:
	case TransportUDP:
		if d.Address == "" {
			return errs.ErrInvalidParameter{What: "udp transport without address"}
		}
	default:
		return errs.ErrInvalidParameter{What: fmt.Sprintf("transport %q", d.Transport)}
	}
	if d.Sync.GPIO > regmap.GpioMax {
		return errs.ErrInvalidParameter{What: fmt.Sprintf("sync gpio %d, must be 0..%d", d.Sync.GPIO, regmap.GpioMax)}
	}
	if d.TxLink == nil && len(d.RxLinks) == 0 {
		return errs.ErrInvalidParameter{What: "no tx or rx link configured"}
	}
	if (d.Tx == nil) != (d.TxLink == nil) {
		return errs.ErrInvalidParameter{What: "tx datapath and tx link must be configured together"}
	}
	if (d.Rx == nil) != (len(d.RxLinks) == 0) {
		return errs.ErrInvalidParameter{What: "rx datapath and rx links must be configured together"}
	}
	if len(d.RxLinks) > 2 {
		return errs.ErrInvalidParameter{What: fmt.Sprintf("%d rx links", len(d.RxLinks))}
	}
	if len(d.RxLinks) == 2 && !d.RxLinks[0].DualLink {
		return errs.ErrInvalidParameter{What: "second rx link without dual link mode"}
	}
	if len(d.RxLinks) == 1 && d.RxLinks[0].DualLink {
		return errs.ErrInvalidParameter{What: "dual link mode needs two rx links"}
	}
	return nil
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return filepath.Join(home, ConfigDir, ConfigFile)
}

func DefaultDBPath() string {
	return filepath.Join(filepath.Dir(DefaultConfigPath()), DBFile)
}

// NewDefaultDevice is a simulated chip with a 204C transmit link and a
// 204C receive link
func NewDefaultDevice(name string) *Device {
	return &Device{
		Name:      name,
		Transport: TransportSim,
		DacHz:     DefaultDacHz,
		AdcHz:     DefaultAdcHz,
		RefHz:     DefaultRefHz,
		Sync: Sync{
			Trigger:       "lmfc_rising",
			SysrefAverage: 3,
			ResetSettleMs: DefaultResetSettle,
		},
		Tx: &TxPath{
			MainInterpolation:    6,
			ChannelInterpolation: 4,
			DacCrossbar:          []int{0x1, 0x2, 0x4, 0x8},
			ChannelGain:          []uint16{0x800, 0x800, 0x800, 0x800, 0x800, 0x800, 0x800, 0x800},
		},
		TxLink: &jesd.LinkConfig{
			Params: jesd.Params{
				L: 8, F: 2, K: 32, S: 1, M: 8, N: 16, NP: 16,
				Subclass: 1, Version: jesd.Version204C, ModeID: 17,
			},
			LaneMapping: []int{0, 1, 2, 3, 4, 5, 6, 7},
		},
		Rx: &RxPath{
			MainDecimation:    []uint32{4, 4, 4, 4},
			ChannelDecimation: []uint32{1, 1, 1, 1, 1, 1, 1, 1},
			MainEnable:        []bool{true, true, true, true},
			ChannelEnable:     []bool{true, true, true, true, true, true, true, true},
		},
		RxLinks: []*jesd.LinkConfig{
			{
				Params: jesd.Params{
					L: 8, F: 2, K: 32, S: 1, M: 8, N: 16, NP: 16,
					Subclass: 1, Version: jesd.Version204C, ModeID: 18,
				},
				LaneMapping:     []int{0, 1, 2, 3, 4, 5, 6, 7},
				ConverterSelect: []int{0, 1, 2, 3, 4, 5, 6, 7},
			},
		},
	}
}

func NewDefaultConfig() *Config {
	return &Config{
		IP:              DefaultIP,
		Port:            DefaultPort,
		DBPath:          DefaultDBPath(),
		LogLevel:        DefaultLogLevel,
		Retries:         DefaultRetries,
		PollRetries:     DefaultPollRetries,
		PollIntervalMs:  DefaultPollIntervalMs,
		BridgeTimeoutMs: DefaultBridgeTimeout,
		Devices:         []*Device{NewDefaultDevice(DefaultDeviceName)},
		filepath:        DefaultConfigPath(),
	}
}
