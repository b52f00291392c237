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

package board

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"jinr.ru/greenlab/go-mxfe/pkg/command"
	"jinr.ru/greenlab/go-mxfe/pkg/config"
	srvboard "jinr.ru/greenlab/go-mxfe/pkg/srv/board"
)

const (
	ListenOptionName   = "listen"
	ProdIDOptionName   = "prod-id"
	RevisionOptionName = "revision"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Simulated board controller",
	}
	cmd.AddCommand(NewServeCommand())
	return cmd
}

// NewServeCommand answers SPI bridge frames so devices with the udp
// transport can be brought up without hardware
func NewServeCommand() *cobra.Command {
	var listen, prodID string
	var revision uint8
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a simulated chip over the SPI bridge protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(prodID, 0, 16)
			if err != nil {
				return fmt.Errorf("--%s: %w", ProdIDOptionName, err)
			}
			return command.StartBoardServer(listen, uint16(id), revision)
		},
	}
	cmd.Flags().StringVar(&listen, ListenOptionName, fmt.Sprintf("%s:%d", config.DefaultIP, srvboard.DefaultPort), "Address to bind")
	cmd.Flags().StringVar(&prodID, ProdIDOptionName, "0x9081", "Chip product id")
	cmd.Flags().Uint8Var(&revision, RevisionOptionName, 3, "Chip revision")
	return cmd
}
