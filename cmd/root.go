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

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"jinr.ru/greenlab/go-mxfe/cmd/board"
	"jinr.ru/greenlab/go-mxfe/cmd/bringup"
	"jinr.ru/greenlab/go-mxfe/cmd/completion"
	"jinr.ru/greenlab/go-mxfe/cmd/config"
	"jinr.ru/greenlab/go-mxfe/cmd/control"
	"jinr.ru/greenlab/go-mxfe/cmd/reg"
	pkgconfig "jinr.ru/greenlab/go-mxfe/pkg/config"
	"jinr.ru/greenlab/go-mxfe/pkg/log"
)

const (
	LogLevelOptionName = "log-level"
	ConfigOptionName   = "config"
)

func NewRootCommand(out io.Writer) *cobra.Command {
	var logLevel, configPath string
	cfg := pkgconfig.NewDefaultConfig()
	cmd := &cobra.Command{
		Use:           "go-mxfe",
		Short:         "Tool to bring up JESD204 links of MxFE devices",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				cfg.SetPath(configPath)
			}
			loadErr := cfg.Load()
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if err := log.Init(cmd.ErrOrStderr(), cfg.LogLevel); err != nil {
				log.Warning("%s", err)
			}
			if loadErr != nil && !errors.Is(loadErr, os.ErrNotExist) {
				return loadErr
			}
			if loadErr != nil {
				log.Debug("No config at %s, using defaults", cfg.Path())
			}
			return nil
		},
	}
	cmd.SetOut(out)
	cmd.AddCommand(config.NewCommand(cfg))
	cmd.AddCommand(bringup.NewCommand(cfg))
	cmd.AddCommand(control.NewCommand(cfg))
	cmd.AddCommand(reg.NewCommand(cfg))
	cmd.AddCommand(board.NewCommand())
	cmd.AddCommand(completion.NewCommand())
	cmd.PersistentFlags().StringVar(&logLevel, LogLevelOptionName, "", fmt.Sprintf("Log level. %s", log.HelpLevels))
	cmd.PersistentFlags().StringVar(&configPath, ConfigOptionName, "", fmt.Sprintf("Config file. Default is %s", pkgconfig.DefaultConfigPath()))
	return cmd
}
