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

package bringup

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"jinr.ru/greenlab/go-mxfe/pkg/command"
	"jinr.ru/greenlab/go-mxfe/pkg/config"
)

const (
	DeviceOptionName    = "device"
	TransportOptionName = "transport"
)

// NewCommand runs the bring-up sequence in this process and prints a
// yaml report. The report is printed also when bring-up failed.
func NewCommand(cfg *config.Config) *cobra.Command {
	var device, transport string
	cmd := &cobra.Command{
		Use:   "bringup",
		Short: "Bring up JESD204 links of configured devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			if transport != "" {
				for _, d := range cfg.Devices {
					d.Transport = transport
				}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			report, err := command.BringUp(context.Background(), cfg, device)
			if report != nil {
				data, marshalErr := yaml.Marshal(report)
				if marshalErr != nil {
					return marshalErr
				}
				fmt.Fprint(cmd.OutOrStdout(), string(data))
			}
			return err
		},
	}
	cmd.Flags().StringVar(&device, DeviceOptionName, "", "Device name. All devices of the chain when empty")
	cmd.Flags().StringVar(&transport, TransportOptionName, "",
		fmt.Sprintf("Override the transport of every device: %s or %s", config.TransportSim, config.TransportUDP))
	return cmd
}
