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
	"crypto/ed25519"
	"fmt"
	"os/user"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lillux/rye/pkg/approval"
	"github.com/lillux/rye/pkg/transcript"
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Inspect and manage threads",
}

var threadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active threads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		recs, err := rt.Registry.ListActive(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(recs)
	},
}

var threadsShowCmd = &cobra.Command{
	Use:   "show <thread-id>",
	Short: "Show one thread's registry record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		rec, err := rt.Registry.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(rec)
	},
}

var verifyAllowTrailing bool

var threadsVerifyCmd = &cobra.Command{
	Use:   "verify <thread-id>",
	Short: "Verify a thread's transcript checkpoints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		lookup := func(fingerprint string) (ed25519.PublicKey, error) {
			pub, err := rt.Trust.PublicKey(fingerprint)
			if err != nil {
				return nil, err
			}
			if pub == nil {
				return nil, fmt.Errorf("fingerprint %s not in any trust store", fingerprint)
			}
			return pub, nil
		}

		path := filepath.Join(rt.Spaces.ThreadsDir(), args[0], transcript.FileName)
		res, err := transcript.Verify(path, lookup, transcript.VerifyOptions{
			AllowUnsignedTrailing: verifyAllowTrailing,
		})
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var (
	approveDeny   bool
	approveReason string
)

var threadsApproveCmd = &cobra.Command{
	Use:   "approve <thread-id>",
	Short: "Answer a thread's pending approval request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		threadDir := filepath.Join(rt.Spaces.ThreadsDir(), args[0])
		req, err := approval.PendingRequest(threadDir)
		if err != nil {
			return err
		}
		if req == nil {
			return fmt.Errorf("thread %s has no pending approval request", args[0])
		}

		responder := ""
		if u, err := user.Current(); err == nil {
			responder = u.Username
		}
		resp := &approval.Response{
			RequestID: req.RequestID,
			Approved:  !approveDeny,
			Reason:    approveReason,
			Responder: responder,
		}
		if err := approval.Respond(threadDir, resp); err != nil {
			return err
		}
		return printJSON(resp)
	},
}

func init() {
	threadsVerifyCmd.Flags().BoolVar(&verifyAllowTrailing, "allow-trailing", false, "accept events after the last checkpoint")
	threadsApproveCmd.Flags().BoolVar(&approveDeny, "deny", false, "deny instead of approve")
	threadsApproveCmd.Flags().StringVar(&approveReason, "reason", "", "reason recorded with the response")
	threadsCmd.AddCommand(threadsListCmd, threadsShowCmd, threadsVerifyCmd, threadsApproveCmd)
	rootCmd.AddCommand(threadsCmd)
}
