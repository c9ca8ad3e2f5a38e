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

	"github.com/spf13/cobra"

	"github.com/lillux/rye/pkg/signing"
)

var signProvenance string

var signCmd = &cobra.Command{
	Use:   "sign <file>...",
	Short: "Sign artifacts with the local key",
	Long: `Sign embeds an Ed25519 signature line into each file, creating the
local keypair on first use and trusting it. Re-signing replaces any
existing signature line.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.Trust.EnsureLocalKey(); err != nil {
			return err
		}
		kp, err := rt.Keys.Keypair()
		if err != nil {
			return err
		}

		type signed struct {
			Path        string `json:"path"`
			Fingerprint string `json:"fingerprint"`
			ContentHash string `json:"content_hash"`
		}
		var out []signed
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			info, err := os.Stat(path)
			if err != nil {
				return err
			}

			format := signing.DetectFormat(path)
			sig := signing.SignContent(kp, format, string(data))
			sig.Provenance = signProvenance
			result, err := signing.ApplySignature(format, string(data), path, sig)
			if err != nil {
				return fmt.Errorf("failed to sign %s: %w", path, err)
			}
			if err := os.WriteFile(path, []byte(result), info.Mode().Perm()); err != nil {
				return err
			}
			out = append(out, signed{Path: path, Fingerprint: sig.Fingerprint, ContentHash: sig.ContentHash})
		}
		return printJSON(out)
	},
}

func init() {
	signCmd.Flags().StringVar(&signProvenance, "provenance", "", `registry provenance claim ("provider@username")`)
	rootCmd.AddCommand(signCmd)
}
