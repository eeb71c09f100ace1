/*
Copyright 2026 Nscale.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/unikorn-cloud/pulp-smash/test/api"

	cr "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

type options struct {
	types []string
	bugs  []int
}

func (o *options) AddFlags(f *pflag.FlagSet) {
	f.StringSliceVar(&o.types, "type", []string{api.OSTreeTypeID}, "Content type to check plugin support for, may be repeated.")
	f.IntSliceVar(&o.bugs, "bug", nil, "Issue number to check testability of, may be repeated.")
}

func run(ctx context.Context, o *options) error {
	config, err := api.LoadTestConfig()
	if err != nil {
		return err
	}

	client := api.NewAPIClientWithConfig(config, api.WithLogger(log.Log.WithName("pulp")))

	version, err := api.ServerVersion(ctx, client)
	if err != nil {
		return err
	}

	fmt.Printf("server: %s\n", config.BaseURL)
	fmt.Printf("version: %s\n", version)

	for _, typeID := range o.types {
		supported, err := api.TypeIsSupported(ctx, client, typeID)
		if err != nil {
			return err
		}

		fmt.Printf("type %s: supported=%t\n", typeID, supported)
	}

	if len(o.bugs) == 0 {
		return nil
	}

	selector, tracker, err := api.NewServerBugSelector(ctx, client)
	if err != nil {
		return err
	}

	for _, id := range o.bugs {
		testable, err := selector.BugIsTestable(ctx, id)
		if err != nil {
			return err
		}

		fmt.Printf("bug %d: testable=%t (%s)\n", id, testable, tracker.IssueURL(id))
	}

	return nil
}

func main() {
	var o options

	o.AddFlags(pflag.CommandLine)

	zapOptions := zap.Options{}
	zapOptions.BindFlags(flag.CommandLine)

	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()

	log.SetLogger(zap.New(zap.UseFlagOptions(&zapOptions)))

	ctx := cr.SetupSignalHandler()

	if err := run(ctx, &o); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
