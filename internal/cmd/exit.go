package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	apperrors "github.com/textlens/textlens/internal/errors"
)

const offlineHint = "The backend is unreachable and nothing is cached for this request. " +
	"Retry once connectivity returns, or run the same command while online to seed the cache."

// ExitCodeFor picks the foundry exit code for a failed command.
func ExitCodeFor(err error) foundry.ExitCode {
	switch apperrors.EnsureEnvelope(err).Code {
	case apperrors.CodeConfigInvalid:
		return foundry.ExitConfigInvalid
	case apperrors.CodeOfflineNoCache, apperrors.CodeExternalService,
		apperrors.CodeTooManyRequests, apperrors.CodeServiceUnavailable:
		return foundry.ExitExternalServiceUnavailable
	default:
		return foundry.ExitFailure
	}
}

// ExitWithCode logs err through logger with the exit code's catalog entry and
// exits. A nil logger falls back to stderr.
func ExitWithCode(logger *logging.Logger, code foundry.ExitCode, msg string, err error) {
	info := exitInfo(code)
	if logger == nil {
		writeFatal(os.Stderr, info, msg, err)
		os.Exit(info.Code)
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_category", info.Category),
	}
	fields = append(fields, envelopeFields(err)...)
	logger.Error(msg, fields...)
	os.Exit(info.Code)
}

// ExitWithCodeStderr is ExitWithCode for failures before any logger exists.
func ExitWithCodeStderr(code foundry.ExitCode, msg string, err error) {
	info := exitInfo(code)
	writeFatal(os.Stderr, info, msg, err)
	os.Exit(info.Code)
}

func exitInfo(code foundry.ExitCode) foundry.ExitCodeInfo {
	if info, ok := foundry.GetExitCodeInfo(code); ok {
		return info
	}
	return foundry.ExitCodeInfo{Code: int(code), Name: "UNKNOWN", Description: "unrecognized exit code"}
}

func writeFatal(w io.Writer, info foundry.ExitCodeInfo, msg string, err error) {
	var env *gferrors.ErrorEnvelope
	switch {
	case err == nil:
		_, _ = fmt.Fprintf(w, "FATAL: %s\n", msg)
	case errors.As(err, &env):
		_, _ = fmt.Fprintf(w, "FATAL: %s [%s]: %s\n", msg, env.Code, env.Message)
		if cause := envelopeCause(env); cause != "" {
			_, _ = fmt.Fprintf(w, "Cause: %s\n", cause)
		}
	default:
		_, _ = fmt.Fprintf(w, "FATAL: %s: %v\n", msg, err)
	}

	_, _ = fmt.Fprintf(w, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
	if errors.Is(err, apperrors.ErrOfflineNoCache) {
		_, _ = fmt.Fprintf(w, "Hint: %s\n", offlineHint)
	} else if info.RetryHint != "" {
		_, _ = fmt.Fprintf(w, "Retry: %s\n", info.RetryHint)
	}
}

func envelopeCause(env *gferrors.ErrorEnvelope) string {
	if wrapped, ok := env.Context["wrapped_error"].(string); ok {
		return wrapped
	}
	if original, ok := env.Original.(string); ok {
		return original
	}
	return ""
}

func envelopeFields(err error) []zap.Field {
	if err == nil {
		return nil
	}
	env := apperrors.EnsureEnvelope(err)
	fields := []zap.Field{
		zap.String("error_code", env.Code),
		zap.String("error_message", env.Message),
	}
	if env.CorrelationID != "" {
		fields = append(fields, zap.String("correlation_id", env.CorrelationID))
	}
	if env.Context != nil {
		fields = append(fields, zap.Any("error_context", env.Context))
	}
	return append(fields, zap.Error(err))
}
