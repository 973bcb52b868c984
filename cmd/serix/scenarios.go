// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yuktathapliyal/serix/internal/scenario"
)

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the built-in attack scenarios",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := scenario.Builtin()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCATEGORY\tPERSONA\tSEVERITY\tPROBES\tDESCRIPTION")
			for _, name := range reg.Names() {
				sc, err := reg.Get(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					sc.Name, sc.Category, sc.Persona, sc.Severity, len(sc.Templates), sc.Description)
			}
			return w.Flush()
		},
	}
}
