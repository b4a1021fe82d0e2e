// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeStoreDocumentNotFound   Code = "store.document.get.not_found"
	CodeStoreDocumentInvalid    Code = "store.document.invalid_input"
	CodeStoreDatabaseFailure    Code = "store.database.failure"
	CodeStoreBackendUnsupported Code = "store.backend.unsupported"
	CodeStoreIndexFailure       Code = "store.index.upstream.failure"
	CodeStoreVectorInvalid      Code = "store.vector.invalid_input"

	CodeEngineStoreInvalidInput  Code = "engine.store.invalid_input"
	CodeEngineSearchInvalidQuery Code = "engine.search.invalid_query"
	CodeRegistryRecordNotFound   Code = "engine.registry.get.not_found"
	CodeRegistryRecordInvalid    Code = "engine.registry.record.invalid_format"

	CodeEmbedProviderNotFound Code = "embed.provider.registry.not_found"
	CodeEmbedRequestInvalid   Code = "embed.request.invalid"
	CodeEmbedUpstreamFailure  Code = "embed.upstream.failure"

	CodeLLMResponseInvalid   Code = "llm.response.invalid_format"
	CodeLLMValidateExhausted Code = "llm.validate.attempts_exhausted"
	CodeLLMUpstreamFailure   Code = "llm.upstream.failure"

	CodeConvoActorNotFound        Code = "convo.actor.get.not_found"
	CodeConvoActorKindNotFound    Code = "convo.actor.kind.not_found"
	CodeConvoConversationNotFound Code = "convo.conversation.get.not_found"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeSecretNotFound      Code = "secret.get.not_found"
	CodeSecretInvalidInput  Code = "secret.invalid_input"
	CodeSecretStoreFailure  Code = "secret.store.failure"
	CodeSecretDeleteFailure Code = "secret.delete.failure"
	CodeSecretListFailure   Code = "secret.list.failure"
	CodeSecretResolveFailure Code = "secret.resolve.failure"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerShutdownFailure Code = "server.shutdown.failure"

	CodeCLIInputInvalid Code = "cli.input.invalid"
	CodeCLISetupFailure Code = "cli.setup.failure"
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

func FieldNamespace(value string) Attr {
	return Field("namespace", value)
}

func FieldTable(value string) Attr {
	return Field("table", value)
}

func FieldEmbeddingID(value string) Attr {
	return Field("embedding_id", value)
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

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
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

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_query" ||
		r == "invalid_value" || r == "invalid_format"
}

// IsUpstreamFailure reports whether the error originated in one of the
// backing services (embedding provider, vector index, or document store)
// rather than in Mnemo's own logic.
func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
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
