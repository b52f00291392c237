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
	"context"
	"os"
	"os/signal"

	"jinr.ru/greenlab/go-mxfe/pkg/config"
	"jinr.ru/greenlab/go-mxfe/pkg/hal"
	"jinr.ru/greenlab/go-mxfe/pkg/srv/board"
	"jinr.ru/greenlab/go-mxfe/pkg/srv/control"
	"jinr.ru/greenlab/go-mxfe/pkg/srv/control/ifc"
	"jinr.ru/greenlab/go-mxfe/pkg/state"
)

// StartControlServer serves the API until interrupted
func StartControlServer(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := control.NewControlServer(ctx, cfg)
	if err != nil {
		return err
	}
	return s.Run()
}

// StartBoardServer answers SPI frames out of a simulated chip until
// interrupted
func StartBoardServer(addr string, prodID uint16, revision uint8) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := board.NewServer(ctx, addr, hal.NewSimChip(prodID, revision))
	if err != nil {
		return err
	}
	return s.Run()
}

// BringUp runs the sequence in this process. An empty dev brings up the
// whole chain.
func BringUp(ctx context.Context, cfg *config.Config, dev string) (*ifc.Report, error) {
	names := make([]string, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		names = append(names, d.Name)
	}
	st, err := state.Open(cfg.DBPath, names...)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	sys, err := control.NewSystem(cfg, st)
	if err != nil {
		return nil, err
	}
	defer sys.Close()

	if dev == "" {
		return sys.BringUp(ctx)
	}
	return sys.BringUpDevice(ctx, dev)
}
