// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yuktathapliyal/serix/internal/store"
	serixerr "github.com/yuktathapliyal/serix/pkg/errors"
)

func newCampaignsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaigns",
		Short: "List past runs for a target",
		RunE:  listCampaigns,
	}

	cmd.Flags().String("target", "", "target identifier")
	cmd.Flags().Int("limit", 20, "maximum number of runs to show")

	return cmd
}

func listCampaigns(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	targetName, _ := cmd.Flags().GetString("target")
	if targetName == "" {
		return serixerr.New(serixerr.CodeCLISetupFailure, "campaigns requires --target")
	}
	limit, _ := cmd.Flags().GetInt("limit")

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	campaigns, err := db.ListCampaigns(cmd.Context(), targetName, limit)
	if err != nil {
		return err
	}
	if len(campaigns) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no runs recorded for target %q\n", targetName)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tMODE\tSTATUS\tGRADE\tOVERALL\tPASSED\tFINDINGS\tWHEN")
	for _, c := range campaigns {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%t\t%d\t%s\n",
			c.RunID, c.Mode, c.Status, c.Grade, c.Overall, c.Passed,
			len(c.Result.Findings), c.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}
