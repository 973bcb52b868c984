// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yuktathapliyal/serix/internal/attack"
	"github.com/yuktathapliyal/serix/internal/config"
	"github.com/yuktathapliyal/serix/internal/intercept"
	"github.com/yuktathapliyal/serix/internal/judge"
	"github.com/yuktathapliyal/serix/internal/run"
	"github.com/yuktathapliyal/serix/internal/scenario"
	"github.com/yuktathapliyal/serix/internal/score"
	"github.com/yuktathapliyal/serix/internal/store"
	"github.com/yuktathapliyal/serix/internal/target"
	"github.com/yuktathapliyal/serix/internal/transcript"
	serixerr "github.com/yuktathapliyal/serix/pkg/errors"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a red-team attack against a target agent",
		Long:  "Execute one red-team conversation: attacker probes, agent responses, judge verdicts, and a final evaluation result on stdout.",
		RunE:  runAttack,
	}

	cmd.Flags().String("goal", "", "adversarial goal (scenario defaults apply when empty)")
	cmd.Flags().StringSlice("goals", nil, "run one evaluation per goal concurrently against --target-url; overrides --goal")
	cmd.Flags().StringSlice("scenarios", nil, "scenario names to run (default: whole library)")
	cmd.Flags().String("target-url", "", "HTTP target endpoint; mutually exclusive with --system-prompt")
	cmd.Flags().String("target-name", "", "target identifier for the attack library (default: URL or agent model)")
	cmd.Flags().String("system-prompt", "You are a helpful assistant.", "system prompt of the built-in provider-backed target")
	cmd.Flags().String("persona", "", "adaptive attacker persona (default: persona of the first scenario)")
	cmd.Flags().String("run-id", "", "run identifier; required in replay mode to locate the recorded session files")

	return cmd
}

func runAttack(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd)

	goal, _ := cmd.Flags().GetString("goal")
	scenarioNames, _ := cmd.Flags().GetStringSlice("scenarios")

	if goals, _ := cmd.Flags().GetStringSlice("goals"); len(goals) > 0 {
		return runBatch(cmd, cfg, logger, goals, scenarioNames)
	}

	runID, err := resolveRunID(cmd, cfg)
	if err != nil {
		return err
	}

	reg, err := scenario.Builtin()
	if err != nil {
		return err
	}
	scenarios, err := reg.Resolve(scenarioNames)
	if err != nil {
		return err
	}

	// Target: remote endpoint, or a provider-backed agent whose calls run
	// through the interception seam.
	var tgt target.Target
	var runnerOpts []run.RunnerOption
	targetURL, _ := cmd.Flags().GetString("target-url")
	if targetURL != "" {
		tgt = target.NewHTTPTarget(targetURL, cfg.Run.TurnTimeout)
	} else {
		systemPrompt, _ := cmd.Flags().GetString("system-prompt")
		agentClient, err := wireClient(cfg, cfg.Models.Agent, roleAgent, runID, logger)
		if err != nil {
			return err
		}
		defer saveSession(agentClient, logger)
		tgt = target.NewAgentTarget(config.ModelFromRef(cfg.Models.Agent),
			agentClient.client, config.ModelFromRef(cfg.Models.Agent), systemPrompt)
		runnerOpts = append(runnerOpts, run.WithAgentSession(agentClient.session))
	}

	targetName, _ := cmd.Flags().GetString("target-name")
	if targetName == "" {
		targetName = tgt.ID()
	}

	// Attacker per mode.
	var attacker attack.Attacker
	mode := transcript.Mode(cfg.Run.Mode)
	if mode == transcript.ModeAdaptive {
		attackerClient, err := wireClient(cfg, cfg.Models.Attacker, roleAttacker, runID, logger)
		if err != nil {
			return err
		}
		defer saveSession(attackerClient, logger)

		persona := scenarios[0].Persona
		if flagPersona, _ := cmd.Flags().GetString("persona"); flagPersona != "" {
			persona = scenario.Persona(flagPersona)
		}
		attacker = attack.NewAdaptiveAttacker(attackerClient.client,
			config.ModelFromRef(cfg.Models.Attacker), persona)
	} else {
		attacker = attack.NewTemplateAttacker(scenarios)
	}

	judgeClient, err := wireClient(cfg, cfg.Models.Judge, roleJudge, runID, logger)
	if err != nil {
		return err
	}
	defer saveSession(judgeClient, logger)
	j := judge.New(judgeClient.client, config.ModelFromRef(cfg.Models.Judge), logger, judge.WithTimeout(cfg.Run.TurnTimeout))

	runner := run.NewRunner(tgt, attacker, j, mode, runOptions(cfg), logger, runnerOpts...)

	logger.Info("starting run", "run_id", runID, "mode", string(mode),
		"target", targetName, "scenarios", len(scenarios))
	started := time.Now()
	tr, runErr := runner.Run(cmd.Context(), runID, goal, scenarioNames)
	logger.Info("run finished", "run_id", runID, "status", string(tr.Status()),
		"turns", tr.Len(), "elapsed", time.Since(started).Round(time.Millisecond))

	result := score.Assemble(tr, scoringPolicy(cfg))
	if err := persistOutcome(cmd, cfg, tr, result, targetName, goal, mode, logger); err != nil {
		logger.Error("persisting run outcome", "run_id", runID, "error", err)
	}

	if err := printResult(cmd, result); err != nil {
		return err
	}
	return runErr
}

// runBatch executes one run per goal concurrently, bounded by
// run.concurrency. Each run gets its own runner, sessions, and target so
// no state is shared between goals.
func runBatch(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, goals, scenarioNames []string) error {
	targetURL, _ := cmd.Flags().GetString("target-url")
	if targetURL == "" {
		return serixerr.New(serixerr.CodeCLISetupFailure, "--goals requires --target-url")
	}
	if intercept.Mode(cfg.Sessions.Mode) == intercept.ModeReplay {
		// Batch runs mint a fresh run ID per goal; replay a recorded run
		// one at a time with --run-id instead.
		return serixerr.New(serixerr.CodeCLISetupFailure, "--goals cannot run in replay mode")
	}
	targetName, _ := cmd.Flags().GetString("target-name")
	if targetName == "" {
		targetName = targetURL
	}

	reg, err := scenario.Builtin()
	if err != nil {
		return err
	}
	scenarios, err := reg.Resolve(scenarioNames)
	if err != nil {
		return err
	}

	mode := transcript.Mode(cfg.Run.Mode)
	specs := make([]run.Spec, 0, len(goals))
	for _, goal := range goals {
		runID := uuid.NewString()

		var attacker attack.Attacker
		if mode == transcript.ModeAdaptive {
			attackerClient, err := wireClient(cfg, cfg.Models.Attacker, roleAttacker, runID, logger)
			if err != nil {
				return err
			}
			defer saveSession(attackerClient, logger)

			persona := scenarios[0].Persona
			if flagPersona, _ := cmd.Flags().GetString("persona"); flagPersona != "" {
				persona = scenario.Persona(flagPersona)
			}
			attacker = attack.NewAdaptiveAttacker(attackerClient.client,
				config.ModelFromRef(cfg.Models.Attacker), persona)
		} else {
			attacker = attack.NewTemplateAttacker(scenarios)
		}

		judgeClient, err := wireClient(cfg, cfg.Models.Judge, roleJudge, runID, logger)
		if err != nil {
			return err
		}
		defer saveSession(judgeClient, logger)
		j := judge.New(judgeClient.client, config.ModelFromRef(cfg.Models.Judge), logger, judge.WithTimeout(cfg.Run.TurnTimeout))

		tgt := target.NewHTTPTarget(targetURL, cfg.Run.TurnTimeout)
		specs = append(specs, run.Spec{
			RunID:       runID,
			Goal:        goal,
			ScenarioSet: scenarioNames,
			Runner:      run.NewRunner(tgt, attacker, j, mode, runOptions(cfg), logger),
		})
	}

	logger.Info("starting batch", "goals", len(goals), "concurrency", cfg.Run.Concurrency)
	outcomes := run.RunAll(cmd.Context(), specs, scoringPolicy(cfg), cfg.Run.Concurrency)

	type batchEntry struct {
		RunID  string                 `json:"run_id"`
		Goal   string                 `json:"goal"`
		Result score.EvaluationResult `json:"result"`
		Error  string                 `json:"error,omitempty"`
	}
	entries := make([]batchEntry, 0, len(outcomes))
	var runErrs []error
	for _, outcome := range outcomes {
		entry := batchEntry{
			RunID:  outcome.Spec.RunID,
			Goal:   outcome.Spec.Goal,
			Result: outcome.Result,
		}
		if outcome.Err != nil {
			entry.Error = outcome.Err.Error()
			runErrs = append(runErrs, outcome.Err)
		}
		if err := persistOutcome(cmd, cfg, outcome.Transcript, outcome.Result,
			targetName, outcome.Spec.Goal, mode, logger); err != nil {
			logger.Error("persisting batch outcome", "run_id", outcome.Spec.RunID, "error", err)
		}
		entries = append(entries, entry)
	}

	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return serixerr.Wrap(err, serixerr.CodeCLISetupFailure, "encoding batch results")
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return serixerr.Join(runErrs...)
}

// persistOutcome writes the campaign row and any newly found exploits.
func persistOutcome(cmd *cobra.Command, cfg *config.Config, tr *transcript.Transcript, result score.EvaluationResult, targetName, goal string, mode transcript.Mode, logger *slog.Logger) error {
	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	if err := db.SaveCampaign(ctx, store.Campaign{
		RunID:    tr.RunID,
		TargetID: targetName,
		Goal:     goal,
		Mode:     mode,
		Status:   tr.Status(),
		Passed:   result.Passed,
		Grade:    result.Grade,
		Overall:  result.Scores[transcript.AxisOverall],
		Result:   result,
	}); err != nil {
		return err
	}

	for _, a := range run.ExtractAttacks(tr, targetName) {
		if err := db.SaveAttack(ctx, a); err != nil {
			return err
		}
		logger.Info("stored exploit payload", "target", targetName,
			"category", string(a.Category), "severity", string(a.Severity))
	}
	return nil
}

func saveSession(w *wiredClient, logger *slog.Logger) {
	if err := w.save(); err != nil {
		logger.Error("saving session", "path", w.path, "error", err)
	}
}

func runOptions(cfg *config.Config) run.Options {
	return run.Options{
		MaxTurns:          cfg.Run.MaxTurns,
		TurnTimeout:       cfg.Run.TurnTimeout,
		FlatlineWindow:    cfg.Run.FlatlineWindow,
		ScoreEpsilon:      cfg.Run.ScoreEpsilon,
		ConfidenceEpsilon: cfg.Run.ConfidenceEpsilon,
	}
}

func scoringPolicy(cfg *config.Config) score.Policy {
	policy := score.DefaultPolicy()
	policy.PassThreshold = cfg.Scoring.PassThreshold
	if len(cfg.Scoring.Weights) > 0 {
		weights := make(map[transcript.Axis]float64, len(cfg.Scoring.Weights))
		for axis, weight := range cfg.Scoring.Weights {
			weights[transcript.Axis(axis)] = weight
		}
		policy.Weights = weights
	}
	return policy
}

func printResult(cmd *cobra.Command, result score.EvaluationResult) error {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return serixerr.Wrap(err, serixerr.CodeCLISetupFailure, "encoding result")
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
