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

// Package jesd translates configured link parameters into the framing of
// a JESD204 link, derives lane rates and classifies link status words.
package jesd

import (
	"fmt"

	"jinr.ru/greenlab/go-mxfe/pkg/errs"
)

// Version is the JESD204 revision number carried in link parameters
type Version uint8

const (
	Version204A Version = 0
	Version204B Version = 1
	Version204C Version = 2
)

// Encoding is the line coding family a link runs with
type Encoding int

const (
	// Legacy is 8b/10b encoding of JESD204A and B
	Legacy Encoding = iota
	// Newer is 64b/66b encoding of JESD204C
	Newer
)

func (v Version) Encoding() Encoding {
	if v == Version204C {
		return Newer
	}
	return Legacy
}

// Ratio returns line bits over payload bits
func (e Encoding) Ratio() (n, d uint64) {
	if e == Newer {
		return 66, 64
	}
	return 10, 8
}

func (e Encoding) String() string {
	if e == Newer {
		return "64b66b"
	}
	return "8b10b"
}

// Params are the JESD framing parameters of one link
type Params struct {
	L          uint8   `json:"L"`
	F          uint8   `json:"F"`
	K          uint8   `json:"K"`
	S          uint8   `json:"S"`
	M          uint8   `json:"M"`
	N          uint8   `json:"N"`
	NP         uint8   `json:"NP"`
	CS         uint8   `json:"CS"`
	HD         uint8   `json:"HD"`
	Subclass   uint8   `json:"subclass"`
	Version    Version `json:"version"`
	Scrambling bool    `json:"scrambling"`
	DualLink   bool    `json:"dualLink"`
	DeviceID   uint8   `json:"deviceID"`
	ModeID     uint8   `json:"modeID"`
}

func (p Params) Validate() error {
	switch {
	case p.L == 0 || p.L > MaxLanes:
		return errs.ErrInvalidParameter{What: fmt.Sprintf("lane count L=%d", p.L)}
	case p.M == 0:
		return errs.ErrInvalidParameter{What: "converter count M=0"}
	case p.F == 0 || p.K == 0 || p.S == 0:
		return errs.ErrInvalidParameter{What: fmt.Sprintf("F=%d K=%d S=%d", p.F, p.K, p.S)}
	case p.NP != 8 && p.NP != 12 && p.NP != 16 && p.NP != 24:
		return errs.ErrInvalidParameter{What: fmt.Sprintf("NP=%d", p.NP)}
	case p.N == 0 || p.N > p.NP:
		return errs.ErrInvalidParameter{What: fmt.Sprintf("N=%d with NP=%d", p.N, p.NP)}
	case p.Subclass > 1:
		return errs.ErrInvalidParameter{What: fmt.Sprintf("subclass %d", p.Subclass)}
	case p.Version > Version204C:
		return errs.ErrInvalidParameter{What: fmt.Sprintf("JESD version %d", p.Version)}
	}
	return nil
}

// SameFraming reports whether two links share the framing that dual-link
// mode requires to be identical. Lane mapping and converter select may differ.
func SameFraming(a, b Params) bool {
	return a == b
}

// LaneRateKbps returns (M*NP*enc_n*rate)/(L*enc_d*decim*1000)
func LaneRateKbps(p Params, converterRateHz uint64, decimation uint32) (uint64, error) {
	if p.L == 0 {
		return 0, errs.ErrInvalidParameter{What: "lane count L=0"}
	}
	if decimation == 0 {
		return 0, errs.ErrInvalidParameter{What: "decimation 0"}
	}
	n, d := p.Version.Encoding().Ratio()
	num := uint64(p.M) * uint64(p.NP) * n * converterRateHz
	den := uint64(p.L) * d * uint64(decimation) * 1000
	return num / den, nil
}
