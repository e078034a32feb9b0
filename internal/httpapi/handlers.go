// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/passgate/passgate/internal/auth"
)

// Response texts.
const (
	msgUserCreated        = "User created"
	msgLoginSuccessful    = "Login successful"
	msgLoginExists        = "Login already exists"
	msgInvalidCredentials = "Invalid login or password"
	msgInternal           = "Internal server error"
)

type credentialsRequest struct {
	Login    *string `json:"login"`
	Password *string `json:"password"`
}

type registerResponse struct {
	Message string `json:"message"`
	UserID  int64  `json:"user_id"`
}

type loginResponse struct {
	Message string `json:"message"`
	UserID  int64  `json:"user_id"`
	Login   string `json:"login"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// fieldError is one entry of a 422 body.
type fieldError struct {
	Loc     []string `json:"loc"`
	Msg     string   `json:"msg"`
	Type    string   `json:"type"`
	Reasons []string `json:"reasons,omitempty"`
}

type validationResponse struct {
	Detail []fieldError `json:"detail"`
}

type handlers struct {
	svc          Authenticator
	maxBodyBytes int64
}

func (h *handlers) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Auth API is running"})
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	login, password, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	user, err := h.svc.Register(r.Context(), login, password)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, registerResponse{Message: msgUserCreated, UserID: user.ID})
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	login, password, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	user, err := h.svc.Login(r.Context(), login, password)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Message: msgLoginSuccessful, UserID: user.ID, Login: user.Login})
}

// decodeCredentials reads {login, password}. On failure it writes the 422
// response and returns ok=false.
func (h *handlers) decodeCredentials(w http.ResponseWriter, r *http.Request) (login, password string, ok bool) {
	var req credentialsRequest
	if err := decodeBody(http.MaxBytesReader(w, r.Body, h.maxBodyBytes), &req); err != nil {
		msg := "Invalid JSON body"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "Request body too large"
		}
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Detail: []fieldError{{
			Loc:  []string{"body"},
			Msg:  msg,
			Type: "json_invalid",
		}}})
		return "", "", false
	}

	var missing []fieldError
	if req.Login == nil {
		missing = append(missing, missingField("login"))
	}
	if req.Password == nil {
		missing = append(missing, missingField("password"))
	}
	if len(missing) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Detail: missing})
		return "", "", false
	}
	return *req.Login, *req.Password, true
}

// errTrailingData rejects bodies with anything but whitespace after the object.
var errTrailingData = errors.New("unexpected data after JSON object")

// decodeBody decodes exactly one JSON value from body into v.
func decodeBody(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		return err //nolint:wrapcheck // mapped to a 422 by the caller
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err //nolint:wrapcheck // mapped to a 422 by the caller
		}
		return errTrailingData
	}
	return nil
}

func missingField(name string) fieldError {
	return fieldError{Loc: []string{"body", name}, Msg: "Field required", Type: "missing"}
}

// writeServiceError maps the auth outcome taxonomy onto HTTP. Internal
// causes were already logged by the service and are not echoed.
func (h *handlers) writeServiceError(w http.ResponseWriter, err error) {
	switch auth.OutcomeOf(err) {
	case auth.OutcomeValidationFailed:
		verrs := auth.ValidationErrors(err)
		if len(verrs) == 0 {
			writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Detail: []fieldError{{
				Loc: []string{"body"}, Msg: "Validation failed", Type: "value_error",
			}}})
			return
		}
		detail := make([]fieldError, 0, len(verrs))
		for _, verr := range verrs {
			detail = append(detail, fieldError{
				Loc:     []string{"body", verr.Field},
				Msg:     verr.Message(),
				Type:    "value_error",
				Reasons: verr.Reasons,
			})
		}
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Detail: detail})
	case auth.OutcomeConflict:
		writeJSON(w, http.StatusConflict, errorResponse{Detail: msgLoginExists})
	case auth.OutcomeInvalidCredentials:
		writeJSON(w, http.StatusUnauthorized, errorResponse{Detail: msgInvalidCredentials})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: msgInternal})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have disconnected
	json.NewEncoder(w).Encode(body)
}
