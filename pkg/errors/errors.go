// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeConfigLoadFailure        Code = "config.load.failure"
	CodeConfigParseInvalidFormat Code = "config.parse.invalid_format"
	CodeConfigInvalidValue       Code = "config.validate.invalid_value"

	CodeSecretNotFound       Code = "secret.get.not_found"
	CodeSecretInvalidInput   Code = "secret.parse.invalid_input"
	CodeSecretStoreFailure   Code = "secret.store.failure"
	CodeSecretResolveFailure Code = "secret.resolve.failure"

	CodeProviderRequestInvalid Code = "provider.request.invalid"
	CodeProviderKeyMissing     Code = "provider.key.missing"
	CodeProviderTransient      Code = "provider.call.transient"
	CodeProviderFailure        Code = "provider.call.failure"

	// Determinism violations during replay. Always fatal to the run;
	// never retried and never silently resolved.
	CodeReplayMismatch  Code = "replay.fingerprint.mismatch"
	CodeReplayExhausted Code = "replay.cursor.exhausted"

	CodeSessionSaveFailure Code = "session.save.failure"
	CodeSessionLoadFailure Code = "session.load.failure"
	CodeSessionModeInvalid Code = "session.mode.invalid"

	CodeTargetFailure Code = "target.call.failure"
	CodeTargetTimeout Code = "target.call.timeout"

	CodeJudgeFailure       Code = "judge.call.failure"
	CodeJudgeSchemaInvalid Code = "judge.output.invalid_schema"
	CodeJudgeTimeout       Code = "judge.call.timeout"

	CodeScenarioNotFound Code = "scenario.lookup.not_found"
	CodeAttackExhausted  Code = "attack.templates.exhausted"

	CodeRunInvalidInput Code = "run.invalid_input"
	CodeRunAborted      Code = "run.aborted"
	CodeScoreSetTwice   Code = "transcript.score.conflict"

	CodeCLISetupFailure Code = "cli.setup.failure"

	CodeStoreDatabaseFailure Code = "store.database.failure"
	CodeStoreNotFound        Code = "store.entity.not_found"
	CodeStoreInvalidInput    Code = "store.invalid_input"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldRunID(value string) Attr {
	return Field("run_id", value)
}

func FieldTurn(value int) Attr {
	return Field("turn_index", value)
}

func FieldScenario(value string) Attr {
	return Field("scenario", value)
}

func FieldProvider(value string) Attr {
	return Field("provider", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// IsReplayViolation reports whether err invalidates replay determinism.
// These errors propagate unconditionally and abort the run.
func IsReplayViolation(err error) bool {
	return HasCode(err, CodeReplayMismatch) || HasCode(err, CodeReplayExhausted)
}

func IsTransient(err error) bool {
	return reason(CodeOf(err)) == "transient"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func Join(errs ...error) error {
	return oops.Code(CodeRunAborted).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
