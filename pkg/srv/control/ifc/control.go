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
	"context"

	"jinr.ru/greenlab/go-mxfe/pkg/device"
	"jinr.ru/greenlab/go-mxfe/pkg/state"
)

// Report is the outcome of a bring-up request
type Report struct {
	Attempts int              `json:"attempts" yaml:"attempts"`
	Error    string           `json:"error,omitempty" yaml:"error,omitempty"`
	Devices  []*device.Status `json:"devices" yaml:"devices"`
}

// System owns the devices of one chain. Calls touching the same device
// are serialised.
type System interface {
	Devices() []*device.Device
	Device(name string) (*device.Device, error)

	BringUp(ctx context.Context) (*Report, error)
	BringUpDevice(ctx context.Context, name string) (*Report, error)
	TeardownDevice(ctx context.Context, name string) error

	Status(name string) (*device.Status, error)
	LinkStatus(name, link string) (device.LinkStatus, error)
	Record(name string) (*state.Record, error)

	RegRead(name string, addr uint16) (uint8, error)
	RegWrite(name string, addr uint16, val uint8) error
	Shadow(name string) ([]state.Reg, error)

	Close() error
}

type ApiServer interface {
	Run() error
}

type ControlServer interface {
	Run() error
}
