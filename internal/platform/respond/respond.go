// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package respond writes every API response in one of three JSON envelopes.

	{"data": ...}                          success with a resource
	{"message": "..."}                     acknowledgement
	{"error": "...", "code": "...", ...}   failure

Auth responses routinely carry tokens, so nothing written here may be cached
by browsers or intermediaries.
*/
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/taibuivan/bazaar/internal/platform/apperr"
	"github.com/taibuivan/bazaar/internal/platform/ctxutil"
)

// bearerChallenge is advertised on every 401 so clients know which scheme to retry with.
const bearerChallenge = `Bearer realm="bazaar"`

// SuccessEnvelope wraps a returned resource.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// MessageEnvelope is the body of acknowledgements without a resource.
type MessageEnvelope struct {
	Message string `json:"message"`
}

// ErrorEnvelope is the body of every failed request.
type ErrorEnvelope struct {
	Error   string              `json:"error"`
	Code    string              `json:"code"`
	Details []apperr.FieldError `json:"details,omitempty"`
}

// JSON writes payload with the given status and marks the response uncacheable.
func JSON(writer http.ResponseWriter, statusCode int, payload any) {
	header := writer.Header()
	header.Set("Content-Type", "application/json; charset=utf-8")
	header.Set("Cache-Control", "no-store")
	header.Set("Pragma", "no-cache")
	writer.WriteHeader(statusCode)
	_ = json.NewEncoder(writer).Encode(payload)
}

// OK writes data in a 200 success envelope.
func OK(writer http.ResponseWriter, data any) {
	JSON(writer, http.StatusOK, SuccessEnvelope{Data: data})
}

// Created writes data in a 201 success envelope.
func Created(writer http.ResponseWriter, data any) {
	JSON(writer, http.StatusCreated, SuccessEnvelope{Data: data})
}

// Message writes a 200 acknowledgement.
func Message(writer http.ResponseWriter, message string) {
	JSON(writer, http.StatusOK, MessageEnvelope{Message: message})
}

/*
Error renders err as an [ErrorEnvelope].

Errors that are not an [apperr.AppError] become a generic 500 and their text
only reaches the log. Any 5xx is logged with the request ID; a 401 also
carries a Bearer challenge.
*/
func Error(writer http.ResponseWriter, request *http.Request, err error) {
	context := request.Context()
	logger := ctxutil.GetLogger(context)

	var appError *apperr.AppError
	if !errors.As(err, &appError) {
		logger.ErrorContext(context, "unhandled_error_swallowed",
			slog.String("error", err.Error()),
			slog.String("request_id", ctxutil.GetRequestID(context)),
		)
		appError = apperr.Internal(err)
	}

	switch {
	case appError.HTTPStatus >= http.StatusInternalServerError:
		logger.ErrorContext(context, "api_server_error",
			slog.String("code", appError.Code),
			slog.String("method", request.Method),
			slog.String("path", request.URL.Path),
			slog.String("request_id", ctxutil.GetRequestID(context)),
			slog.Any("cause", appError.Cause),
		)
	case appError.HTTPStatus == http.StatusUnauthorized:
		writer.Header().Set("WWW-Authenticate", bearerChallenge)
	}

	JSON(writer, appError.HTTPStatus, ErrorEnvelope{
		Error:   appError.Message,
		Code:    appError.Code,
		Details: appError.Details,
	})
}
