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

package hal

import (
	"fmt"

	"jinr.ru/greenlab/go-mxfe/pkg/errs"
	"jinr.ru/greenlab/go-mxfe/pkg/hal/ifc"
	"jinr.ru/greenlab/go-mxfe/pkg/log"
	"jinr.ru/greenlab/go-mxfe/pkg/regmap"
)

// Fields implements ifc.Regs on top of a raw Bus doing read-modify-write
// of every byte a field touches. Bus errors are returned as errs.ErrTransport.
type Fields struct {
	bus ifc.Bus
}

var _ ifc.Regs = &Fields{}

func NewFields(bus ifc.Bus) *Fields {
	return &Fields{bus: bus}
}

func (r *Fields) RegGet(addr uint16) (uint8, error) {
	val, err := r.bus.RegGet(addr)
	if err != nil {
		return 0, errs.ErrTransport{Op: "reg get", Addr: addr, Err: err}
	}
	return val, nil
}

func (r *Fields) RegSet(addr uint16, val uint8) error {
	if err := r.bus.RegSet(addr, val); err != nil {
		return errs.ErrTransport{Op: "reg set", Addr: addr, Err: err}
	}
	return nil
}

func (r *Fields) GetField(f regmap.Field) (uint32, error) {
	var raw uint64
	for i := 0; i < f.Bytes(); i++ {
		addr := f.Addr + uint16(i)
		b, err := r.bus.RegGet(addr)
		if err != nil {
			return 0, errs.ErrTransport{Op: fmt.Sprintf("get field %s", f.Name), Addr: addr, Err: err}
		}
		raw |= uint64(b) << (8 * i)
	}
	return uint32(raw>>f.Offset) & f.Mask(), nil
}

func (r *Fields) SetField(f regmap.Field, val uint32) error {
	if val&^f.Mask() != 0 {
		return errs.ErrInvalidParameter{What: fmt.Sprintf("value 0x%x does not fit %s", val, f)}
	}
	log.Debug("Set field %s = 0x%x", f, val)
	shifted := uint64(val) << f.Offset
	mask := uint64(f.Mask()) << f.Offset
	for i := 0; i < f.Bytes(); i++ {
		addr := f.Addr + uint16(i)
		byteMask := uint8(mask >> (8 * i))
		byteVal := uint8(shifted >> (8 * i))
		if byteMask != 0xff {
			old, err := r.bus.RegGet(addr)
			if err != nil {
				return errs.ErrTransport{Op: fmt.Sprintf("set field %s", f.Name), Addr: addr, Err: err}
			}
			byteVal = old&^byteMask | byteVal&byteMask
		}
		if err := r.bus.RegSet(addr, byteVal); err != nil {
			return errs.ErrTransport{Op: fmt.Sprintf("set field %s", f.Name), Addr: addr, Err: err}
		}
	}
	return nil
}
