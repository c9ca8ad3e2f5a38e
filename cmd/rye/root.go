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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lillux/rye/internal/log"
	"github.com/lillux/rye/pkg/auth"
	"github.com/lillux/rye/pkg/budget"
	"github.com/lillux/rye/pkg/chain"
	"github.com/lillux/rye/pkg/executor"
	"github.com/lillux/rye/pkg/item"
	"github.com/lillux/rye/pkg/primitives"
	"github.com/lillux/rye/pkg/provider/anthropic"
	"github.com/lillux/rye/pkg/registry"
	"github.com/lillux/rye/pkg/runner"
	"github.com/lillux/rye/pkg/signing"
	"github.com/lillux/rye/pkg/spaces"
	"github.com/lillux/rye/pkg/trust"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "rye",
	Short: "Rye - supervised agent runtime for signed, budgeted directives",
	Long:  `Rye executes declarative directives as supervised LLM threads with Ed25519-signed artifacts, capability-scoped permissions, and a shared budget ledger.`,
}

// Execute runs the root command
func Execute() {
	defer log.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("project-path", ".", "project root containing the .ai space")
	rootCmd.PersistentFlags().StringSlice("system-bundle", nil, "system bundle paths (repeatable)")
	rootCmd.PersistentFlags().Bool("require-signed", false, "reject unsigned items")
	rootCmd.PersistentFlags().String("anthropic-key", "", "Anthropic API key (or use keyring/env)")
	rootCmd.PersistentFlags().String("model", "", "explicit model id (overrides directive tier)")

	_ = viper.BindPFlag("project_path", rootCmd.PersistentFlags().Lookup("project-path"))
	_ = viper.BindPFlag("system_bundles", rootCmd.PersistentFlags().Lookup("system-bundle"))
	_ = viper.BindPFlag("require_signed", rootCmd.PersistentFlags().Lookup("require-signed"))
	_ = viper.BindPFlag("llm.anthropic_api_key", rootCmd.PersistentFlags().Lookup("anthropic-key"))
	_ = viper.BindPFlag("llm.model", rootCmd.PersistentFlags().Lookup("model"))

	viper.SetEnvPrefix("RYE")
	viper.AutomaticEnv()
}

// runtime is the assembled collaborator set the subcommands share.
type runtime struct {
	Spaces   *spaces.Resolver
	Keys     *signing.KeyStore
	Trust    *trust.Store
	Verifier *trust.Verifier
	Loader   *item.Loader
	Executor *executor.Executor
	Registry *registry.Registry
	Ledger   *budget.Ledger
	Auth     *auth.Store

	closers []func() error
}

func (rt *runtime) Close() {
	for _, c := range rt.closers {
		c()
	}
}

// newRuntime wires the shared components from flags and config.
func newRuntime() (*runtime, error) {
	resolver := spaces.NewResolver(viper.GetString("project_path"), viper.GetStringSlice("system_bundles")...)
	keys := signing.NewKeyStore(filepath.Join(resolver.UserPath, ".ai", "keys"))
	trustStore := trust.NewStore(resolver, keys)
	verifier := trust.NewVerifier(trustStore)
	loader := item.NewLoader(resolver, verifier)
	loader.RequireSigned = viper.GetBool("require_signed")

	prims := []primitives.Primitive{primitives.NewHTTPSync(), primitives.NewStream(nil)}
	if sub, err := primitives.NewSubprocess(); err == nil {
		prims = append(prims, sub)
	} else {
		fmt.Fprintf(os.Stderr, "warning: %v; subprocess tools disabled\n", err)
	}
	registryPrims := primitives.NewRegistry(prims...)
	chainResolver := chain.NewResolver(loader, registryPrims.IsPrimitiveID)
	exec := executor.New(chainResolver, registryPrims, resolver)
	exec.UseLockfiles = true

	agentDir := filepath.Join(resolver.ThreadsDir(), "..")
	reg, err := registry.Open(filepath.Join(agentDir, "registry.db"))
	if err != nil {
		return nil, err
	}
	ledger, err := budget.Open(filepath.Join(agentDir, "budget.db"))
	if err != nil {
		reg.Close()
		return nil, err
	}

	rt := &runtime{
		Spaces:   resolver,
		Keys:     keys,
		Trust:    trustStore,
		Verifier: verifier,
		Loader:   loader,
		Executor: exec,
		Registry: reg,
		Ledger:   ledger,
		Auth:     auth.NewStore(filepath.Join(resolver.UserPath, ".ai", "auth")),
	}
	rt.closers = append(rt.closers, reg.Close, ledger.Close)
	return rt, nil
}

// newRunner adds the LLM provider on top of the shared runtime.
func (rt *runtime) newRunner(cmd *cobra.Command) (*runner.Runner, error) {
	key := viper.GetString("llm.anthropic_api_key")
	if key == "" {
		key = os.Getenv("ANTHROPIC_API_KEY")
	}
	if key == "" {
		if tok, err := rt.Auth.GetToken(cmd.Context(), "anthropic"); err == nil {
			key = tok.AccessToken
		}
	}
	p, err := anthropic.New(anthropic.Config{
		APIKey: key,
		Model:  viper.GetString("llm.model"),
	})
	if err != nil {
		return nil, err
	}
	return &runner.Runner{
		Spaces:   rt.Spaces,
		Loader:   rt.Loader,
		Provider: p,
		Executor: rt.Executor,
		Registry: rt.Registry,
		Ledger:   rt.Ledger,
		Keys:     rt.Keys,
	}, nil
}

// printJSON writes the command result to stdout. Progress and warnings
// go to stderr so the output stays machine-readable.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
