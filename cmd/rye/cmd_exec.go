// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lillux/rye/pkg/runner"
	"github.com/lillux/rye/pkg/types"
)

var (
	execInputs     []string
	execBudget     float64
	execContinueID string
	execMessage    string
	execMode       string
)

var execCmd = &cobra.Command{
	Use:   "exec <directive-id>",
	Short: "Execute a directive as a supervised thread",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		r, err := rt.newRunner(cmd)
		if err != nil {
			return err
		}

		var result *runner.Result
		if execContinueID != "" {
			if execMessage == "" {
				return fmt.Errorf("--message is required with --continue")
			}
			fmt.Fprintf(os.Stderr, "continuing thread %s\n", execContinueID)
			result, err = r.Continue(cmd.Context(), execContinueID, execMessage)
		} else {
			if len(args) != 1 {
				return fmt.Errorf("a directive id is required unless --continue is given")
			}
			inputs, perr := parseInputs(execInputs)
			if perr != nil {
				return perr
			}
			fmt.Fprintf(os.Stderr, "executing directive %s\n", args[0])
			result, err = r.Start(cmd.Context(), runner.StartOptions{
				DirectiveID: args[0],
				Inputs:      inputs,
				BudgetUSD:   execBudget,
				Mode:        types.ThreadMode(execMode),
			})
		}
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	execCmd.Flags().StringArrayVarP(&execInputs, "input", "i", nil, "directive input as key=value (repeatable)")
	execCmd.Flags().Float64Var(&execBudget, "budget", 0, "spend cap in USD (0 uses the directive's limit)")
	execCmd.Flags().StringVar(&execContinueID, "continue", "", "continue a paused thread by id")
	execCmd.Flags().StringVar(&execMessage, "message", "", "user message for --continue")
	execCmd.Flags().StringVar(&execMode, "mode", "", "thread mode override (single, conversation)")
	rootCmd.AddCommand(execCmd)
}

func parseInputs(kvs []string) (map[string]interface{}, error) {
	inputs := map[string]interface{}{}
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("malformed input %q: expected key=value", kv)
		}
		inputs[k] = v
	}
	return inputs, nil
}
