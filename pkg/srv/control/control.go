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
	"context"

	"jinr.ru/greenlab/go-mxfe/pkg/config"
	"jinr.ru/greenlab/go-mxfe/pkg/log"
	"jinr.ru/greenlab/go-mxfe/pkg/srv/control/ifc"
	"jinr.ru/greenlab/go-mxfe/pkg/state"
)

type ControlServer struct {
	context.Context
	*config.Config
	state *state.State
	sys   *System
	api   *ApiServer
}

var _ ifc.ControlServer = &ControlServer{}

// NewControlServer opens the state database, the device buses and the API
func NewControlServer(ctx context.Context, cfg *config.Config) (*ControlServer, error) {
	log.Debug("Initializing control server, state: %s", cfg.DBPath)

	names := make([]string, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		names = append(names, d.Name)
	}
	st, err := state.Open(cfg.DBPath, names...)
	if err != nil {
		return nil, err
	}
	sys, err := NewSystem(cfg, st)
	if err != nil {
		st.Close()
		return nil, err
	}
	api, err := NewApiServer(ctx, cfg, sys)
	if err != nil {
		sys.Close()
		st.Close()
		return nil, err
	}
	return &ControlServer{
		Context: ctx,
		Config:  cfg,
		state:   st,
		sys:     sys,
		api:     api,
	}, nil
}

func (s *ControlServer) Run() error {
	defer s.state.Close()
	defer s.sys.Close()
	return s.api.Run()
}
