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

package reg

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"jinr.ru/greenlab/go-mxfe/pkg/command"
	"jinr.ru/greenlab/go-mxfe/pkg/config"
)

const (
	DeviceOptionName = "device"
	AddrOptionName   = "addr"
	ValueOptionName  = "value"
)

func NewCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reg",
		Short: "Raw register access through the control server",
	}
	cmd.AddCommand(NewGetCommand(cfg))
	cmd.AddCommand(NewSetCommand(cfg))
	return cmd
}

func NewGetCommand(cfg *config.Config) *cobra.Command {
	var device, addr string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Read register. Without --addr prints the last known register image",
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient := command.NewApiClient(cfg)
			if addr != "" {
				value, err := apiClient.RegRead(device, addr)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Register state: %s = %s\n", addr, value)
				return nil
			}
			regs, err := apiClient.RegReadAll(device)
			if err != nil {
				return err
			}
			var keys []string
			for key := range regs {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "Register state: %s = %s\n", key, regs[key])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&device, DeviceOptionName, "", "Device name")
	cmd.MarkFlagRequired(DeviceOptionName)
	cmd.Flags().StringVar(&addr, AddrOptionName, "", "Register address (hexadecimal, 4 digits)")

	return cmd
}

func NewSetCommand(cfg *config.Config) *cobra.Command {
	var device, addr, value string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Write value to register",
		RunE: func(cmd *cobra.Command, args []string) error {
			return command.NewApiClient(cfg).RegWrite(device, addr, value)
		},
	}
	cmd.Flags().StringVar(&device, DeviceOptionName, "", "Device name")
	cmd.MarkFlagRequired(DeviceOptionName)
	cmd.Flags().StringVar(&addr, AddrOptionName, "", "Register address (hexadecimal)")
	cmd.MarkFlagRequired(AddrOptionName)
	cmd.Flags().StringVar(&value, ValueOptionName, "", "Register value (hexadecimal)")
	cmd.MarkFlagRequired(ValueOptionName)

	return cmd
}
