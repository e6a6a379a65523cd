// Package apierror maps service errors to HTTP statuses and error codes.
package apierror

import (
	"errors"
	"net/http"

	"github.com/zhouzirui/promptdesk/internal/service/ai"
	chatService "github.com/zhouzirui/promptdesk/internal/service/chat"
	"github.com/zhouzirui/promptdesk/pkg/utils"
)

// Error codes shared by the JSON API and the websocket.
const (
	CodeMissingCredential = "missing_credential"
	CodeEmptyPrompt       = "empty_prompt"
	CodeUnknownModel      = "unknown_model"
	CodeSessionNotFound   = "session_not_found"
	CodeExternalService   = "external_service"
	CodeBadRequest        = "bad_request"
	CodeInternal          = "internal"
)

// FromError returns the status and body for err.
func FromError(err error) (int, utils.ErrorBody) {
	var aiErr *ai.Error
	switch {
	case errors.Is(err, chatService.ErrMissingCredential):
		return http.StatusBadRequest, utils.ErrorBody{Error: err.Error(), Code: CodeMissingCredential}
	case errors.Is(err, chatService.ErrEmptyPrompt):
		return http.StatusBadRequest, utils.ErrorBody{Error: err.Error(), Code: CodeEmptyPrompt}
	case errors.Is(err, chatService.ErrSessionNotFound):
		return http.StatusNotFound, utils.ErrorBody{Error: err.Error(), Code: CodeSessionNotFound}
	case errors.As(err, &aiErr):
		return http.StatusBadGateway, utils.ErrorBody{Error: aiErr.Message, Code: CodeExternalService, Kind: aiErr.Kind.String()}
	default:
		return http.StatusInternalServerError, utils.ErrorBody{Error: err.Error(), Code: CodeInternal}
	}
}

// Respond writes err as a JSON error response.
func Respond(w http.ResponseWriter, err error) {
	status, body := FromError(err)
	utils.RespondErrorBody(w, status, body)
}
