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
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"jinr.ru/greenlab/go-mxfe/pkg/command"
	"jinr.ru/greenlab/go-mxfe/pkg/config"
)

func NewCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "control",
		Short: "Control server and requests to it",
	}
	cmd.AddCommand(NewStartCommand(cfg))
	cmd.AddCommand(NewListCommand(cfg))
	cmd.AddCommand(NewStatusCommand(cfg))
	cmd.AddCommand(NewBringUpCommand(cfg))
	cmd.AddCommand(NewTeardownCommand(cfg))
	return cmd
}

func printYaml(out io.Writer, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Fprint(out, string(data))
	return nil
}

func NewListCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List devices driven by the control server",
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := command.NewApiClient(cfg).Devices()
			if err != nil {
				return err
			}
			for _, info := range infos {
				role := "slave"
				if info.ChainTop {
					role = "master"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\tinitialized=%t\t%v\n",
					info.Name, info.Chip, role, info.Initialized, info.Links)
			}
			return nil
		},
	}
	return cmd
}

func NewStatusCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <device> [link]",
		Short: "Show link status of a device",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := command.NewApiClient(cfg)
			if len(args) == 2 {
				ls, err := client.LinkStatus(args[0], args[1])
				if err != nil {
					return err
				}
				return printYaml(cmd.OutOrStdout(), ls)
			}
			st, err := client.Status(args[0])
			if err != nil {
				return err
			}
			return printYaml(cmd.OutOrStdout(), st)
		},
	}
	return cmd
}

func NewBringUpCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bringup [device]",
		Short: "Bring up one device or the whole chain",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			device := ""
			if len(args) == 1 {
				device = args[0]
			}
			report, err := command.NewApiClient(cfg).BringUp(device)
			if report != nil {
				if printErr := printYaml(cmd.OutOrStdout(), report); printErr != nil {
					return printErr
				}
			}
			return err
		},
	}
	return cmd
}

func NewTeardownCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "teardown <device>",
		Short: "Take the links of a device down",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return command.NewApiClient(cfg).Teardown(args[0])
		},
	}
	return cmd
}
