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

package ifc

import (
	"jinr.ru/greenlab/go-mxfe/pkg/regmap"
)

// Bus is raw byte wide access to the chip register space
type Bus interface {
	RegGet(addr uint16) (uint8, error)
	RegSet(addr uint16, val uint8) error
}

// Regs is the register access layer the bring-up core runs on.
// Field values wider than one register are little endian.
type Regs interface {
	Bus
	GetField(f regmap.Field) (uint32, error)
	SetField(f regmap.Field, val uint32) error
}
