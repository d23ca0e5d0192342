package events

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Type is the stable wire name of an event variant.
type Type string

// Catalog type names.
const (
	TypeAuthLoginAttempt        Type = "auth_login_attempt"
	TypeAuthCodeVerified        Type = "auth_code_verified"
	TypeAuthTokenRefresh        Type = "auth_token_refresh"
	TypeAuthSessionValidated    Type = "auth_session_validated"
	TypeTaskCreated             Type = "task_created"
	TypeTaskStarted             Type = "task_started"
	TypeTaskCompleted           Type = "task_completed"
	TypeTaskFailed              Type = "task_failed"
	TypeTaskCancelled           Type = "task_cancelled"
	TypeIntegrationConnected    Type = "integration_connected"
	TypeIntegrationDisconnected Type = "integration_disconnected"
	TypeIntegrationUsed         Type = "integration_used"
	TypeIntegrationError        Type = "integration_error"
	TypeOAuthFlowStarted        Type = "oauth_flow_started"
	TypeOAuthFlowCompleted      Type = "oauth_flow_completed"
	TypeWebhookReceived         Type = "webhook_received"
	TypeWebhookProcessed        Type = "webhook_processed"
	TypeCocoonRegistered        Type = "cocoon_registered"
	TypeCocoonConnected         Type = "cocoon_connected"
	TypeCocoonDisconnected      Type = "cocoon_disconnected"
	TypeCocoonClaimed           Type = "cocoon_claimed"
	TypeCocoonSetupTokenCreated Type = "cocoon_setup_token_created"
	TypeCocoonSetupTokenUsed    Type = "cocoon_setup_token_used"
	TypeProjectCreated          Type = "project_created"
	TypeProjectUpdated          Type = "project_updated"
	TypeProjectDeleted          Type = "project_deleted"
	TypeAPIRequest              Type = "api_request"
	TypeDatabaseQuery           Type = "database_query"
	TypeApplicationError        Type = "application_error"
)

// ErrUnknownType is returned when a payload names a type outside the catalog.
var ErrUnknownType = errors.New("unknown event type")

// UnknownTypeError carries the offending discriminant.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown event type: %q", e.Type)
}

// Is reports whether target is ErrUnknownType.
func (e *UnknownTypeError) Is(target error) bool {
	return target == ErrUnknownType
}

// Event is one variant of the analytics catalog.
type Event interface {
	// Type returns the snake_case discriminant used on the wire.
	Type() Type

	owner() (uuid.UUID, bool)
	origin() (string, bool)
}

// UserOf returns the user that owns e, when the variant records one.
func UserOf(e Event) (uuid.UUID, bool) {
	if e == nil {
		return uuid.Nil, false
	}
	return e.owner()
}

// ServiceOf returns the emitting service for variants that name one.
func ServiceOf(e Event) (string, bool) {
	if e == nil {
		return "", false
	}
	return e.origin()
}

var catalog = []Type{
	TypeAuthLoginAttempt,
	TypeAuthCodeVerified,
	TypeAuthTokenRefresh,
	TypeAuthSessionValidated,
	TypeTaskCreated,
	TypeTaskStarted,
	TypeTaskCompleted,
	TypeTaskFailed,
	TypeTaskCancelled,
	TypeIntegrationConnected,
	TypeIntegrationDisconnected,
	TypeIntegrationUsed,
	TypeIntegrationError,
	TypeOAuthFlowStarted,
	TypeOAuthFlowCompleted,
	TypeWebhookReceived,
	TypeWebhookProcessed,
	TypeCocoonRegistered,
	TypeCocoonConnected,
	TypeCocoonDisconnected,
	TypeCocoonClaimed,
	TypeCocoonSetupTokenCreated,
	TypeCocoonSetupTokenUsed,
	TypeProjectCreated,
	TypeProjectUpdated,
	TypeProjectDeleted,
	TypeAPIRequest,
	TypeDatabaseQuery,
	TypeApplicationError,
}

// Types returns every catalog type name in declaration order.
func Types() []Type {
	out := make([]Type, len(catalog))
	copy(out, catalog)
	return out
}

// New returns a zero value of the variant named by t.
func New(t Type) (Event, error) {
	switch t {
	case TypeAuthLoginAttempt:
		return &AuthLoginAttempt{}, nil
	case TypeAuthCodeVerified:
		return &AuthCodeVerified{}, nil
	case TypeAuthTokenRefresh:
		return &AuthTokenRefresh{}, nil
	case TypeAuthSessionValidated:
		return &AuthSessionValidated{}, nil
	case TypeTaskCreated:
		return &TaskCreated{}, nil
	case TypeTaskStarted:
		return &TaskStarted{}, nil
	case TypeTaskCompleted:
		return &TaskCompleted{}, nil
	case TypeTaskFailed:
		return &TaskFailed{}, nil
	case TypeTaskCancelled:
		return &TaskCancelled{}, nil
	case TypeIntegrationConnected:
		return &IntegrationConnected{}, nil
	case TypeIntegrationDisconnected:
		return &IntegrationDisconnected{}, nil
	case TypeIntegrationUsed:
		return &IntegrationUsed{}, nil
	case TypeIntegrationError:
		return &IntegrationError{}, nil
	case TypeOAuthFlowStarted:
		return &OAuthFlowStarted{}, nil
	case TypeOAuthFlowCompleted:
		return &OAuthFlowCompleted{}, nil
	case TypeWebhookReceived:
		return &WebhookReceived{}, nil
	case TypeWebhookProcessed:
		return &WebhookProcessed{}, nil
	case TypeCocoonRegistered:
		return &CocoonRegistered{}, nil
	case TypeCocoonConnected:
		return &CocoonConnected{}, nil
	case TypeCocoonDisconnected:
		return &CocoonDisconnected{}, nil
	case TypeCocoonClaimed:
		return &CocoonClaimed{}, nil
	case TypeCocoonSetupTokenCreated:
		return &CocoonSetupTokenCreated{}, nil
	case TypeCocoonSetupTokenUsed:
		return &CocoonSetupTokenUsed{}, nil
	case TypeProjectCreated:
		return &ProjectCreated{}, nil
	case TypeProjectUpdated:
		return &ProjectUpdated{}, nil
	case TypeProjectDeleted:
		return &ProjectDeleted{}, nil
	case TypeAPIRequest:
		return &APIRequest{}, nil
	case TypeDatabaseQuery:
		return &DatabaseQuery{}, nil
	case TypeApplicationError:
		return &ApplicationError{}, nil
	default:
		return nil, &UnknownTypeError{Type: string(t)}
	}
}
