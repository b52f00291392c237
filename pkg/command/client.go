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
	"fmt"
	"strings"

	"github.com/imroc/req"

	"jinr.ru/greenlab/go-mxfe/pkg/config"
	"jinr.ru/greenlab/go-mxfe/pkg/device"
	"jinr.ru/greenlab/go-mxfe/pkg/srv/control"
	"jinr.ru/greenlab/go-mxfe/pkg/srv/control/ifc"
	"jinr.ru/greenlab/go-mxfe/pkg/state"
)

// ErrApi returned when the control server answered with an error status
type ErrApi struct {
	Status string
	Body   string
}

func (e ErrApi) Error() string {
	return fmt.Sprintf("API error: %s: %s", e.Status, strings.TrimSpace(e.Body))
}

type ApiClient struct {
	*config.Config
	ApiPrefix string
}

func NewApiClient(cfg *config.Config) *ApiClient {
	return &ApiClient{
		Config:    cfg,
		ApiPrefix: fmt.Sprintf("http://%s:%d/api", cfg.IP, cfg.Port),
	}
}

func (c *ApiClient) url(format string, v ...interface{}) string {
	return c.ApiPrefix + fmt.Sprintf(format, v...)
}

func check(r *req.Resp) error {
	if r.Response().StatusCode != 200 {
		return ErrApi{Status: r.Response().Status, Body: r.String()}
	}
	return nil
}

// getJSON sends a GET request and decodes the answer into v
func (c *ApiClient) getJSON(url string, v interface{}) error {
	r, err := req.Get(url)
	if err != nil {
		return err
	}
	if err := check(r); err != nil {
		return err
	}
	return r.ToJSON(v)
}

// Devices lists the devices the control server drives
func (c *ApiClient) Devices() ([]control.DeviceInfo, error) {
	var infos []control.DeviceInfo
	if err := c.getJSON(c.url("/device"), &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// Status sends request to read and classify every link of a device
func (c *ApiClient) Status(dev string) (*device.Status, error) {
	st := &device.Status{}
	if err := c.getJSON(c.url("/device/%s", dev), st); err != nil {
		return nil, err
	}
	return st, nil
}

func (c *ApiClient) LinkStatus(dev, link string) (*device.LinkStatus, error) {
	ls := &device.LinkStatus{}
	if err := c.getJSON(c.url("/link/%s/%s", dev, link), ls); err != nil {
		return nil, err
	}
	return ls, nil
}

func (c *ApiClient) Record(dev string) (*state.Record, error) {
	rec := &state.Record{}
	if err := c.getJSON(c.url("/device/%s/record", dev), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// BringUp sends request to bring up one device or, when dev is empty,
// the whole chain. A failed bring-up still returns the report when the
// server sent one.
func (c *ApiClient) BringUp(dev string) (*ifc.Report, error) {
	url := c.url("/bringup")
	if dev != "" {
		url = c.url("/device/%s/bringup", dev)
	}
	r, err := req.Post(url)
	if err != nil {
		return nil, err
	}
	checkErr := check(r)
	report := &ifc.Report{}
	if err := r.ToJSON(report); err != nil {
		if checkErr != nil {
			return nil, checkErr
		}
		return nil, err
	}
	return report, checkErr
}

func (c *ApiClient) Teardown(dev string) error {
	r, err := req.Post(c.url("/device/%s/teardown", dev))
	if err != nil {
		return err
	}
	return check(r)
}

// RegRead sends request to get the value of a register of a device
func (c *ApiClient) RegRead(dev, addr string) (string, error) {
	reg := &control.RegHex{}
	if err := c.getJSON(c.url("/reg/r/%s/%s", dev, addr), reg); err != nil {
		return "", err
	}
	return reg.Value, nil
}

// RegReadAll sends request to get the last known values of all registers
// of a device
func (c *ApiClient) RegReadAll(dev string) (map[string]string, error) {
	var regs []*control.RegHex
	if err := c.getJSON(c.url("/reg/r/%s", dev), &regs); err != nil {
		return nil, err
	}
	result := make(map[string]string)
	for _, reg := range regs {
		result[reg.Addr] = reg.Value
	}
	return result, nil
}

// RegWrite sends request to write the value to a register of a device
func (c *ApiClient) RegWrite(dev, addr, value string) error {
	reg := &control.RegHex{
		Addr:  addr,
		Value: value,
	}
	r, err := req.Post(c.url("/reg/w/%s", dev), req.BodyJSON(reg))
	if err != nil {
		return err
	}
	return check(r)
}
