// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command yuihafs mounts a version-tree file system at a given mount point,
// backed by a journal and block store kept in a single backing directory,
// which also holds the mount's control socket.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	bindErr error

	mountConfig Config
)

// Config is the set of settings cobra/viper populate before mount. Fields
// mirror the gcsfuse family's flags-plus-config-file convention rather than
// bare flag parsing.
type Config struct {
	BackingDir  string `mapstructure:"backing-dir"`
	Uid         uint32 `mapstructure:"uid"`
	Gid         uint32 `mapstructure:"gid"`
	Mode        uint32 `mapstructure:"mode"`
	Debug       bool   `mapstructure:"debug"`
	MetricsAddr string `mapstructure:"metrics-addr"`
}

var rootCmd = &cobra.Command{
	Use:   "yuihafs [flags] mount_point",
	Short: "Mount a version-tree file system",
	Long: `yuihafs mounts a FUSE file system in which every regular file is
the current leaf of a version tree: opening with O_VERSION snapshots the
current contents before writing, and opening with O_PARENT walks to the
previous version.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if err := viper.Unmarshal(&mountConfig); err != nil {
			return fmt.Errorf("unmarshal config: %w", err)
		}
		return doMount(args[0], mountConfig)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "path to a YAML config file")
	rootCmd.PersistentFlags().String("backing-dir", "", "directory holding the journal, block store and control socket (required)")
	rootCmd.PersistentFlags().Uint32("uid", 0, "owner uid reported for the mount root")
	rootCmd.PersistentFlags().Uint32("gid", 0, "owner gid reported for the mount root")
	rootCmd.PersistentFlags().Uint32("mode", 0o755, "mode reported for the mount root")
	rootCmd.PersistentFlags().Bool("debug", false, "enable verbose FUSE op logging")
	rootCmd.PersistentFlags().String("metrics-addr", "", "if set, serve Prometheus metrics on this address")

	bindErr = viper.BindPFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(debugCmd)
}

func initConfig() {
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		bindErr = fmt.Errorf("reading config file: %w", err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
