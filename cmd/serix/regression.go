// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yuktathapliyal/serix/internal/config"
	"github.com/yuktathapliyal/serix/internal/judge"
	"github.com/yuktathapliyal/serix/internal/run"
	"github.com/yuktathapliyal/serix/internal/score"
	"github.com/yuktathapliyal/serix/internal/store"
	"github.com/yuktathapliyal/serix/internal/target"
	"github.com/yuktathapliyal/serix/internal/transcript"
	serixerr "github.com/yuktathapliyal/serix/pkg/errors"
)

func newRegressionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regression",
		Short: "Replay stored exploits against a target",
		Long:  "Replay every exploit payload stored for a target and judge the responses, catching regressions after prompt or model changes.",
		RunE:  runRegression,
	}

	cmd.Flags().String("target-url", "", "HTTP target endpoint")
	cmd.Flags().String("target-name", "", "target identifier in the attack library (default: URL)")
	cmd.Flags().String("run-id", "", "run identifier; required in replay mode to locate the recorded session files")

	return cmd
}

func runRegression(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd)
	runID, err := resolveRunID(cmd, cfg)
	if err != nil {
		return err
	}

	targetURL, _ := cmd.Flags().GetString("target-url")
	if targetURL == "" {
		return serixerr.New(serixerr.CodeCLISetupFailure, "regression requires --target-url")
	}
	targetName, _ := cmd.Flags().GetString("target-name")
	if targetName == "" {
		targetName = targetURL
	}

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	attacks, err := db.AttacksFor(cmd.Context(), targetName)
	if err != nil {
		return err
	}
	if len(attacks) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no stored exploits for target %q\n", targetName)
		return nil
	}

	judgeClient, err := wireClient(cfg, cfg.Models.Judge, roleJudge, runID, logger)
	if err != nil {
		return err
	}
	defer saveSession(judgeClient, logger)
	j := judge.New(judgeClient.client, config.ModelFromRef(cfg.Models.Judge), logger, judge.WithTimeout(cfg.Run.TurnTimeout))

	tgt := target.NewHTTPTarget(targetURL, cfg.Run.TurnTimeout)
	runner := run.NewRunner(tgt, nil, j, transcript.ModeStatic, runOptions(cfg), logger)

	logger.Info("starting regression", "run_id", runID, "target", targetName, "exploits", len(attacks))
	tr, runErr := runner.Regression(cmd.Context(), runID, attacks)

	result := score.Assemble(tr, scoringPolicy(cfg))
	if err := db.SaveCampaign(cmd.Context(), store.Campaign{
		RunID:    tr.RunID,
		TargetID: targetName,
		Goal:     tr.Goal,
		Mode:     transcript.ModeStatic,
		Status:   tr.Status(),
		Passed:   result.Passed,
		Grade:    result.Grade,
		Overall:  result.Scores[transcript.AxisOverall],
		Result:   result,
	}); err != nil {
		logger.Error("persisting regression outcome", "run_id", runID, "error", err)
	}

	out := struct {
		Result     score.EvaluationResult `json:"result"`
		Regression run.RegressionSummary  `json:"regression"`
	}{
		Result:     result,
		Regression: run.SummarizeRegression(attacks, tr),
	}
	enc, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return serixerr.Wrap(err, serixerr.CodeCLISetupFailure, "encoding regression result")
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(enc))
	return runErr
}
