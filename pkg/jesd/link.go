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

	"jinr.ru/greenlab/go-mxfe/pkg/errs"
)

const (
	MaxLanes           = 8
	MaxConverterSelect = 16
)

// Direction is named after the converter data flow. Transmit links feed
// the DACs and end in the chip JESD receiver (JRX), Receive links carry
// ADC samples out of the chip JESD transmitter (JTX).
type Direction int

const (
	Transmit Direction = iota
	Receive
)

func (d Direction) String() string {
	if d == Receive {
		return "rx"
	}
	return "tx"
}

// LinkConfig is the configured form of a link
type LinkConfig struct {
	Params          `json:",inline"`
	LaneMapping     []int `json:"laneMapping,omitempty"`
	ConverterSelect []int `json:"converterSelect,omitempty"`
	TplPhaseAdjust  uint8 `json:"tplPhaseAdjust,omitempty"`
}

// Link is a validated link. It is read only once bring-up starts.
type Link struct {
	Params
	Name            string
	Direction       Direction
	Index           int
	LaneMapping     [MaxLanes]uint8
	ConverterSelect [MaxConverterSelect]uint8
	TplPhaseAdjust  uint8
}

func LinkName(dir Direction, index int) string {
	return fmt.Sprintf("%s%d", dir, index)
}

// Translate validates the configured link and fills in defaults.
// Scrambling is always enabled.
func Translate(dir Direction, index int, cfg LinkConfig) (*Link, error) {
	name := LinkName(dir, index)
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("link %s: %w", name, err)
	}
	link := &Link{
		Params:    cfg.Params,
		Name:      name,
		Direction: dir,
		Index:     index,
	}
	link.Scrambling = true

	if len(cfg.LaneMapping) > MaxLanes {
		return nil, errs.ErrInvalidParameter{What: fmt.Sprintf("link %s: %d lane mapping entries", name, len(cfg.LaneMapping))}
	}
	for i := range link.LaneMapping {
		link.LaneMapping[i] = uint8(i)
	}
	for i, lane := range cfg.LaneMapping {
		if lane < 0 || lane >= MaxLanes {
			return nil, errs.ErrInvalidParameter{What: fmt.Sprintf("link %s: lane mapping[%d]=%d", name, i, lane)}
		}
		link.LaneMapping[i] = uint8(lane)
	}
	// defaults included, the used lanes must form a permutation
	var used [MaxLanes]bool
	for _, lane := range link.LaneMapping[:link.L] {
		if used[lane] {
			return nil, errs.ErrInvalidParameter{What: fmt.Sprintf("link %s: physical lane %d mapped twice", name, lane)}
		}
		used[lane] = true
	}

	if dir == Receive {
		if len(cfg.ConverterSelect) > MaxConverterSelect {
			return nil, errs.ErrInvalidParameter{What: fmt.Sprintf("link %s: %d converter select entries", name, len(cfg.ConverterSelect))}
		}
		for i := range link.ConverterSelect {
			link.ConverterSelect[i] = uint8(i)
		}
		for i, c := range cfg.ConverterSelect {
			if c < 0 || c >= MaxConverterSelect {
				return nil, errs.ErrInvalidParameter{What: fmt.Sprintf("link %s: converter select[%d]=%d", name, i, c)}
			}
			link.ConverterSelect[i] = uint8(c)
		}
	} else {
		link.TplPhaseAdjust = cfg.TplPhaseAdjust
	}
	return link, nil
}
