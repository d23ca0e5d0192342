package events

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Authentication.

// AuthLoginAttempt is recorded when a user requests a login code.
type AuthLoginAttempt struct {
	UserID  *uuid.UUID `json:"user_id"`
	Email   string     `json:"email"`
	Success bool       `json:"success"`
	Error   *string    `json:"error"`
}

// AuthCodeVerified is recorded when a user submits a login code.
type AuthCodeVerified struct {
	UserID  uuid.UUID `json:"user_id"`
	Success bool      `json:"success"`
	Error   *string   `json:"error"`
}

// AuthTokenRefresh is recorded for every token refresh attempt.
type AuthTokenRefresh struct {
	UserID  uuid.UUID `json:"user_id"`
	Success bool      `json:"success"`
	Error   *string   `json:"error"`
}

// AuthSessionValidated is recorded when a session token is checked.
type AuthSessionValidated struct {
	UserID uuid.UUID `json:"user_id"`
	Valid  bool      `json:"valid"`
}

// Tasks.

// TaskCreated is recorded when a task is submitted.
type TaskCreated struct {
	TaskID    uuid.UUID  `json:"task_id"`
	UserID    uuid.UUID  `json:"user_id"`
	ProjectID *uuid.UUID `json:"project_id"`
	CocoonID  *uuid.UUID `json:"cocoon_id"`
	Command   string     `json:"command"`
}

// TaskStarted is recorded when a task begins executing on a cocoon.
type TaskStarted struct {
	TaskID   uuid.UUID  `json:"task_id"`
	UserID   uuid.UUID  `json:"user_id"`
	CocoonID *uuid.UUID `json:"cocoon_id"`
}

// TaskCompleted is recorded when a task exits successfully.
type TaskCompleted struct {
	TaskID     uuid.UUID `json:"task_id"`
	UserID     uuid.UUID `json:"user_id"`
	DurationMS int64     `json:"duration_ms"`
	ExitCode   int32     `json:"exit_code"`
}

// TaskFailed is recorded when a task fails. Duration and exit code are absent when the task never ran.
type TaskFailed struct {
	TaskID     uuid.UUID `json:"task_id"`
	UserID     uuid.UUID `json:"user_id"`
	DurationMS *int64    `json:"duration_ms"`
	ExitCode   *int32    `json:"exit_code"`
	Error      string    `json:"error"`
}

// TaskCancelled is recorded when a task is cancelled by its owner.
type TaskCancelled struct {
	TaskID     uuid.UUID `json:"task_id"`
	UserID     uuid.UUID `json:"user_id"`
	DurationMS *int64    `json:"duration_ms"`
}

// Integrations.

// IntegrationConnected is recorded when a user links a third-party provider.
type IntegrationConnected struct {
	IntegrationID uuid.UUID  `json:"integration_id"`
	UserID        uuid.UUID  `json:"user_id"`
	Provider      string     `json:"provider"`
	ProjectID     *uuid.UUID `json:"project_id"`
}

// IntegrationDisconnected is recorded when a provider link is removed.
type IntegrationDisconnected struct {
	IntegrationID uuid.UUID `json:"integration_id"`
	UserID        uuid.UUID `json:"user_id"`
	Provider      string    `json:"provider"`
	Reason        *string   `json:"reason"`
}

// IntegrationUsed is recorded when an integration performs an action on behalf of a user.
type IntegrationUsed struct {
	IntegrationID uuid.UUID `json:"integration_id"`
	UserID        uuid.UUID `json:"user_id"`
	Provider      string    `json:"provider"`
	Action        string    `json:"action"`
}

// IntegrationError is recorded when a provider call fails.
type IntegrationError struct {
	IntegrationID uuid.UUID `json:"integration_id"`
	UserID        uuid.UUID `json:"user_id"`
	Provider      string    `json:"provider"`
	Error         string    `json:"error"`
}

// OAuthFlowStarted is recorded when an OAuth authorization redirect is issued.
type OAuthFlowStarted struct {
	UserID   uuid.UUID `json:"user_id"`
	Provider string    `json:"provider"`
	State    string    `json:"state"`
}

// OAuthFlowCompleted is recorded when the OAuth callback is handled.
type OAuthFlowCompleted struct {
	UserID   uuid.UUID `json:"user_id"`
	Provider string    `json:"provider"`
	Success  bool      `json:"success"`
	Error    *string   `json:"error"`
}

// Webhooks.

// WebhookReceived is recorded when an inbound webhook is accepted.
type WebhookReceived struct {
	IntegrationID *uuid.UUID `json:"integration_id"`
	Provider      string     `json:"provider"`
	EventType     string     `json:"event_type"`
	DeliveryID    string     `json:"delivery_id"`
}

// WebhookProcessed is recorded after an inbound webhook has been handled.
type WebhookProcessed struct {
	IntegrationID *uuid.UUID `json:"integration_id"`
	Provider      string     `json:"provider"`
	EventType     string     `json:"event_type"`
	DeliveryID    string     `json:"delivery_id"`
	Success       bool       `json:"success"`
	DurationMS    int64      `json:"duration_ms"`
	Error         *string    `json:"error"`
}

// Cocoons.

// CocoonRegistered is recorded when a new cocoon (user-owned execution device) registers.
type CocoonRegistered struct {
	CocoonID   uuid.UUID `json:"cocoon_id"`
	UserID     uuid.UUID `json:"user_id"`
	DeviceName *string   `json:"device_name"`
}

// CocoonConnected is recorded when a cocoon connects to the signaling server.
type CocoonConnected struct {
	CocoonID uuid.UUID  `json:"cocoon_id"`
	UserID   *uuid.UUID `json:"user_id"`
}

// CocoonDisconnected is recorded when a cocoon connection closes.
type CocoonDisconnected struct {
	CocoonID        uuid.UUID  `json:"cocoon_id"`
	UserID          *uuid.UUID `json:"user_id"`
	DurationSeconds int64      `json:"duration_seconds"`
}

// CocoonClaimed is recorded when a user takes ownership of a cocoon.
type CocoonClaimed struct {
	CocoonID      uuid.UUID `json:"cocoon_id"`
	UserID        uuid.UUID `json:"user_id"`
	ViaSetupToken bool      `json:"via_setup_token"`
}

// CocoonSetupTokenCreated is recorded when a setup token is minted.
type CocoonSetupTokenCreated struct {
	TokenID    uuid.UUID `json:"token_id"`
	UserID     uuid.UUID `json:"user_id"`
	CocoonName *string   `json:"cocoon_name"`
}

// CocoonSetupTokenUsed is recorded when a setup token is redeemed by a cocoon.
type CocoonSetupTokenUsed struct {
	TokenID  uuid.UUID `json:"token_id"`
	CocoonID uuid.UUID `json:"cocoon_id"`
	UserID   uuid.UUID `json:"user_id"`
}

// Projects.

// ProjectCreated is recorded when a project is created.
type ProjectCreated struct {
	ProjectID uuid.UUID `json:"project_id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
}

// ProjectUpdated is recorded when project settings change.
type ProjectUpdated struct {
	ProjectID uuid.UUID `json:"project_id"`
	UserID    uuid.UUID `json:"user_id"`
}

// ProjectDeleted is recorded when a project is removed.
type ProjectDeleted struct {
	ProjectID uuid.UUID `json:"project_id"`
	UserID    uuid.UUID `json:"user_id"`
}

// Service instrumentation.

// APIRequest is recorded by services for each served API request.
type APIRequest struct {
	Service    string     `json:"service"`
	Endpoint   string     `json:"endpoint"`
	Method     string     `json:"method"`
	StatusCode uint16     `json:"status_code"`
	DurationMS int64      `json:"duration_ms"`
	UserID     *uuid.UUID `json:"user_id"`
}

// DatabaseQuery is recorded by services for instrumented queries.
type DatabaseQuery struct {
	Service      string `json:"service"`
	QueryType    string `json:"query_type"`
	DurationMS   int64  `json:"duration_ms"`
	RowsAffected *int64 `json:"rows_affected"`
}

// ApplicationError is recorded when a service surfaces an unexpected error. Context carries arbitrary JSON.
type ApplicationError struct {
	Service      string          `json:"service"`
	ErrorType    string          `json:"error_type"`
	ErrorMessage string          `json:"error_message"`
	UserID       *uuid.UUID      `json:"user_id"`
	Context      json.RawMessage `json:"context"`
}

func (AuthLoginAttempt) Type() Type { return TypeAuthLoginAttempt }
func (AuthCodeVerified) Type() Type { return TypeAuthCodeVerified }
func (AuthTokenRefresh) Type() Type { return TypeAuthTokenRefresh }
func (AuthSessionValidated) Type() Type { return TypeAuthSessionValidated }
func (TaskCreated) Type() Type { return TypeTaskCreated }
func (TaskStarted) Type() Type { return TypeTaskStarted }
func (TaskCompleted) Type() Type { return TypeTaskCompleted }
func (TaskFailed) Type() Type { return TypeTaskFailed }
func (TaskCancelled) Type() Type { return TypeTaskCancelled }
func (IntegrationConnected) Type() Type { return TypeIntegrationConnected }
func (IntegrationDisconnected) Type() Type { return TypeIntegrationDisconnected }
func (IntegrationUsed) Type() Type { return TypeIntegrationUsed }
func (IntegrationError) Type() Type { return TypeIntegrationError }
func (OAuthFlowStarted) Type() Type { return TypeOAuthFlowStarted }
func (OAuthFlowCompleted) Type() Type { return TypeOAuthFlowCompleted }
func (WebhookReceived) Type() Type { return TypeWebhookReceived }
func (WebhookProcessed) Type() Type { return TypeWebhookProcessed }
func (CocoonRegistered) Type() Type { return TypeCocoonRegistered }
func (CocoonConnected) Type() Type { return TypeCocoonConnected }
func (CocoonDisconnected) Type() Type { return TypeCocoonDisconnected }
func (CocoonClaimed) Type() Type { return TypeCocoonClaimed }
func (CocoonSetupTokenCreated) Type() Type { return TypeCocoonSetupTokenCreated }
func (CocoonSetupTokenUsed) Type() Type { return TypeCocoonSetupTokenUsed }
func (ProjectCreated) Type() Type { return TypeProjectCreated }
func (ProjectUpdated) Type() Type { return TypeProjectUpdated }
func (ProjectDeleted) Type() Type { return TypeProjectDeleted }
func (APIRequest) Type() Type { return TypeAPIRequest }
func (DatabaseQuery) Type() Type { return TypeDatabaseQuery }
func (ApplicationError) Type() Type { return TypeApplicationError }

func (a AuthLoginAttempt) owner() (uuid.UUID, bool) { return optionalUser(a.UserID) }
func (a AuthCodeVerified) owner() (uuid.UUID, bool) { return a.UserID, true }
func (a AuthTokenRefresh) owner() (uuid.UUID, bool) { return a.UserID, true }
func (a AuthSessionValidated) owner() (uuid.UUID, bool) { return a.UserID, true }
func (t TaskCreated) owner() (uuid.UUID, bool) { return t.UserID, true }
func (t TaskStarted) owner() (uuid.UUID, bool) { return t.UserID, true }
func (t TaskCompleted) owner() (uuid.UUID, bool) { return t.UserID, true }
func (t TaskFailed) owner() (uuid.UUID, bool) { return t.UserID, true }
func (t TaskCancelled) owner() (uuid.UUID, bool) { return t.UserID, true }
func (i IntegrationConnected) owner() (uuid.UUID, bool) { return i.UserID, true }
func (i IntegrationDisconnected) owner() (uuid.UUID, bool) { return i.UserID, true }
func (i IntegrationUsed) owner() (uuid.UUID, bool) { return i.UserID, true }
func (i IntegrationError) owner() (uuid.UUID, bool) { return i.UserID, true }
func (o OAuthFlowStarted) owner() (uuid.UUID, bool) { return o.UserID, true }
func (o OAuthFlowCompleted) owner() (uuid.UUID, bool) { return o.UserID, true }
func (WebhookReceived) owner() (uuid.UUID, bool) { return uuid.Nil, false }
func (WebhookProcessed) owner() (uuid.UUID, bool) { return uuid.Nil, false }
func (c CocoonRegistered) owner() (uuid.UUID, bool) { return c.UserID, true }
func (c CocoonConnected) owner() (uuid.UUID, bool) { return optionalUser(c.UserID) }
func (c CocoonDisconnected) owner() (uuid.UUID, bool) { return optionalUser(c.UserID) }
func (c CocoonClaimed) owner() (uuid.UUID, bool) { return c.UserID, true }
func (c CocoonSetupTokenCreated) owner() (uuid.UUID, bool) { return c.UserID, true }
func (c CocoonSetupTokenUsed) owner() (uuid.UUID, bool) { return c.UserID, true }
func (p ProjectCreated) owner() (uuid.UUID, bool) { return p.UserID, true }
func (p ProjectUpdated) owner() (uuid.UUID, bool) { return p.UserID, true }
func (p ProjectDeleted) owner() (uuid.UUID, bool) { return p.UserID, true }
func (a APIRequest) owner() (uuid.UUID, bool) { return optionalUser(a.UserID) }
func (DatabaseQuery) owner() (uuid.UUID, bool) { return uuid.Nil, false }
func (a ApplicationError) owner() (uuid.UUID, bool) { return optionalUser(a.UserID) }

func (AuthLoginAttempt) origin() (string, bool) { return "", false }
func (AuthCodeVerified) origin() (string, bool) { return "", false }
func (AuthTokenRefresh) origin() (string, bool) { return "", false }
func (AuthSessionValidated) origin() (string, bool) { return "", false }
func (TaskCreated) origin() (string, bool) { return "", false }
func (TaskStarted) origin() (string, bool) { return "", false }
func (TaskCompleted) origin() (string, bool) { return "", false }
func (TaskFailed) origin() (string, bool) { return "", false }
func (TaskCancelled) origin() (string, bool) { return "", false }
func (IntegrationConnected) origin() (string, bool) { return "", false }
func (IntegrationDisconnected) origin() (string, bool) { return "", false }
func (IntegrationUsed) origin() (string, bool) { return "", false }
func (IntegrationError) origin() (string, bool) { return "", false }
func (OAuthFlowStarted) origin() (string, bool) { return "", false }
func (OAuthFlowCompleted) origin() (string, bool) { return "", false }
func (WebhookReceived) origin() (string, bool) { return "", false }
func (WebhookProcessed) origin() (string, bool) { return "", false }
func (CocoonRegistered) origin() (string, bool) { return "", false }
func (CocoonConnected) origin() (string, bool) { return "", false }
func (CocoonDisconnected) origin() (string, bool) { return "", false }
func (CocoonClaimed) origin() (string, bool) { return "", false }
func (CocoonSetupTokenCreated) origin() (string, bool) { return "", false }
func (CocoonSetupTokenUsed) origin() (string, bool) { return "", false }
func (ProjectCreated) origin() (string, bool) { return "", false }
func (ProjectUpdated) origin() (string, bool) { return "", false }
func (ProjectDeleted) origin() (string, bool) { return "", false }
func (a APIRequest) origin() (string, bool) { return a.Service, true }
func (d DatabaseQuery) origin() (string, bool) { return d.Service, true }
func (a ApplicationError) origin() (string, bool) { return a.Service, true }

func optionalUser(id *uuid.UUID) (uuid.UUID, bool) {
	if id == nil {
		return uuid.Nil, false
	}
	return *id, true
}
