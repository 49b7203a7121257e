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

package main

import (
	"bufio"
	"fmt"
	"net"
	"path/filepath"

	"github.com/spf13/cobra"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Debugging subcommands for a running yuihafs mount",
}

var debugTreeCmd = &cobra.Command{
	Use:   "tree <backing-dir> <inode>",
	Short: "Print a version tree as seen by a running mount",
	Long: `debug tree connects to the control socket a running yuihafs
mount keeps in its backing directory and prints the whole version tree
containing the given inode, starting from its root: every version's ino/generation, vtree_nlink, phantom state
and block pointers (P<n> for a produced block, s<n> for one shared from an
ancestor, - for a hole), indented by depth.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDebugTree(args[0], args[1])
	},
}

func init() {
	debugCmd.AddCommand(debugTreeCmd)
}

func runDebugTree(backingDir, inode string) error {
	sockPath := filepath.Join(backingDir, "control.sock")
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		return fmt.Errorf("dialing control socket %s: %w", sockPath, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "TREE %s\n", inode); err != nil {
		return fmt.Errorf("sending command: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}
	return scanner.Err()
}
