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

package jesd

import (
	"fmt"
)

// LinkState is the 3-bit state of a 64b/66b link, bits [10:8] of the status word
type LinkState uint8

const (
	StateReset LinkState = iota
	StateUndef1
	StateSyncHeaderAlignmentDone
	StateExtMultiblockSyncComplete
	StateExtMultiblockAlignmentComplete
	StateUndef5
	StateLinkGood
	StateUndef7
)

var linkStateNames = [...]string{
	"Reset",
	"Undef1",
	"SyncHeaderAlignmentDone",
	"ExtMultiblockSyncComplete",
	"ExtMultiblockAlignmentComplete",
	"Undef5",
	"LinkGood",
	"Undef7",
}

func (s LinkState) String() string {
	if int(s) < len(linkStateNames) {
		return linkStateNames[s]
	}
	return fmt.Sprintf("LinkState(%d)", uint8(s))
}

// FramerState is the state of the chip JESD transmitter, bits [3:0] of
// its status word
type FramerState uint8

const FramerData FramerState = 13

var framerStateNames = [...]string{
	"CGS", "ILA_M0R", "ILA_M0", "ILA_M1R", "ILA_M1C1", "ILA_M1C2", "ILA_M1C3",
	"ILA_M1", "ILA_M2R", "ILA_M2", "ILA_M3R", "ILA_M3", "ILA_BP", "DATA",
}

func (s FramerState) String() string {
	if int(s) < len(framerStateNames) {
		return framerStateNames[s]
	}
	return fmt.Sprintf("FramerState(%d)", uint8(s))
}

// Bits of the chip JESD transmitter status word
const (
	FramerSyncN            = 1 << 4
	FramerPllLocked        = 1 << 5
	FramerPhaseEstablished = 1 << 6
	FramerModeInvalid      = 1 << 7
	framerStateMask        = 0x0F
	linkStateShift         = 8
	linkStateMask          = 0x07
)

// Verdict is the classification of one status word
type Verdict struct {
	Pass  bool
	State string
}

// Classify204C passes iff the link state is LinkGood
func Classify204C(status uint16) Verdict {
	s := LinkState((status >> linkStateShift) & linkStateMask)
	return Verdict{Pass: s == StateLinkGood, State: s.String()}
}

// Classify204B passes iff every used lane reports ready
func Classify204B(status uint16, lanes uint8) Verdict {
	mask := uint16(1)<<lanes - 1
	return Verdict{
		Pass:  status&mask == mask,
		State: fmt.Sprintf("lanes 0x%02x/0x%02x", status&mask, mask),
	}
}

// ClassifyReceiver classifies the status of a chip JESD receiver (JRX)
func (e Encoding) ClassifyReceiver(status uint16, lanes uint8) Verdict {
	if e == Newer {
		return Classify204C(status)
	}
	return Classify204B(status, lanes)
}

// ClassifyFramer classifies the status of a chip JESD transmitter (JTX).
// The serializer PLL must be locked, the phase established and the mode
// valid. With 8b/10b the framer must also have reached DATA.
func (e Encoding) ClassifyFramer(status uint16) Verdict {
	state := FramerState(status & framerStateMask)
	v := Verdict{Pass: true, State: state.String()}
	switch {
	case status&FramerPllLocked == 0:
		v.Pass, v.State = false, state.String()+" pll unlocked"
	case status&FramerPhaseEstablished == 0:
		v.Pass, v.State = false, state.String()+" phase not established"
	case status&FramerModeInvalid != 0:
		v.Pass, v.State = false, state.String()+" mode invalid"
	case e == Legacy && state != FramerData:
		v.Pass = false
	}
	return v
}

// ClassifyLink picks the classification by link direction
func ClassifyLink(link *Link, status uint16) Verdict {
	enc := link.Version.Encoding()
	if link.Direction == Receive {
		return enc.ClassifyFramer(status)
	}
	return enc.ClassifyReceiver(status, link.L)
}
