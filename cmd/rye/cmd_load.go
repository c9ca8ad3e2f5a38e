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

	"github.com/spf13/cobra"

	"github.com/lillux/rye/pkg/spaces"
	"github.com/lillux/rye/pkg/trust"
)

var loadBody bool

var loadCmd = &cobra.Command{
	Use:   "load <type> <item-id>",
	Short: "Load one item and report its verification status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemType := spaces.ItemType(args[0])
		switch itemType {
		case spaces.ItemTool, spaces.ItemDirective, spaces.ItemKnowledge:
		default:
			return fmt.Errorf("unknown item type %q (want tool, directive, or knowledge)", args[0])
		}

		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		loaded, err := rt.Loader.Load(itemType, args[1])
		if err != nil {
			return err
		}

		out := struct {
			ItemID       string       `json:"item_id"`
			Type         string       `json:"type"`
			Space        string       `json:"space"`
			Path         string       `json:"path"`
			Verification trust.Result `json:"verification"`
			Body         string       `json:"body,omitempty"`
		}{
			ItemID:       loaded.ItemID,
			Type:         string(loaded.Type),
			Space:        string(loaded.Space),
			Path:         loaded.Path,
			Verification: loaded.Verification,
		}
		if loadBody {
			out.Body = loaded.Body
		}
		return printJSON(out)
	},
}

func init() {
	loadCmd.Flags().BoolVar(&loadBody, "body", false, "include the item body in the output")
	rootCmd.AddCommand(loadCmd)
}
