package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gitlab.com/kantoorbase/api/call-events-service/internal/apperrors"
	"gitlab.com/kantoorbase/api/call-events-service/internal/crm"
	"gitlab.com/kantoorbase/api/call-events-service/internal/model"
	"gitlab.com/kantoorbase/api/call-events-service/internal/observer"
	"gitlab.com/kantoorbase/api/call-events-service/internal/phone"
	"gitlab.com/kantoorbase/api/call-events-service/internal/storage"
	"gitlab.com/kantoorbase/api/call-events-service/internal/validator"
	"gitlab.com/kantoorbase/api/call-events-service/pkg/logger"
)

// ContactResolver is the consumed CRM capability: resolve a phone number to a
// contact, or nil when nothing matches.
type ContactResolver interface {
	ResolveByPhone(ctx context.Context, formats phone.Formats) (*crm.Contact, error)
}

// EventPublisher fans a call event out to the connected stream clients.
type EventPublisher interface {
	Publish(event model.CallEvent)
	Count() int
}

// ProcessResult summarizes one ingested webhook event for the HTTP response.
type ProcessResult struct {
	Call         *model.Call
	EventType    model.EventType
	ContactFound bool
	ContactName  string
	Connections  int
}

// CallService drives the ingestion pipeline: normalize, resolve the contact,
// upsert the call row, broadcast the transition.
type CallService struct {
	callRepo       storage.CallRepo
	resolver       ContactResolver
	publisher      EventPublisher
	resolveTimeout time.Duration
}

// NewCallService creates a new call service
func NewCallService(callRepo storage.CallRepo, resolver ContactResolver, publisher EventPublisher, resolveTimeout time.Duration) *CallService {
	if resolveTimeout <= 0 {
		resolveTimeout = 5 * time.Second
	}
	return &CallService{
		callRepo:       callRepo,
		resolver:       resolver,
		publisher:      publisher,
		resolveTimeout: resolveTimeout,
	}
}

// ProcessCallEvent handles one webhook event end to end. Contact resolution
// failures degrade to "no match"; a CRM outage must never block call logging.
// Persistence failures propagate so the caller can answer 500 and the
// platform retries delivery.
func (s *CallService) ProcessCallEvent(ctx context.Context, payload model.CallEventPayload) (*ProcessResult, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	eventKind := model.EventKindForStatus(payload.Status)
	observer.IncEventReceived(string(eventKind))

	if err := validator.Validate(payload); err != nil {
		observer.IncEventFailed(string(eventKind), "validation")
		return nil, fmt.Errorf("%w: %w", apperrors.ErrValidation, err)
	}

	contact := s.resolveContact(ctx, payload)

	call := model.Call{
		ExternalCallID:    payload.CallID,
		OccurredAt:        payload.Timestamp,
		Status:            payload.Status,
		Reason:            payload.Reason,
		Direction:         payload.Direction,
		CallerNumber:      payload.CallerNumber,
		CallerName:        payload.CallerName,
		DestinationNumber: payload.DestinationNumber,
		DestinationUser:   payload.DestinationUser,
		Points:            model.CallPoints(payload.Direction, payload.Status, payload.Reason),
	}
	if contact != nil {
		call.ContactID = contact.ID
		call.ContactName = contact.Name
	}
	if len(payload.Raw) > 0 {
		call.LastPayload = datatypes.JSON(payload.Raw)
	}

	saved, err := s.callRepo.Upsert(ctx, call)
	if err != nil {
		observer.IncEventFailed(string(eventKind), "database")
		log.Error("Failed to persist call event",
			zap.String("external_call_id", payload.CallID),
			zap.Error(err),
		)
		return nil, err
	}

	event := model.NewCallEvent(saved)
	s.publisher.Publish(event)

	observer.IncEventProcessed(string(event.Type))
	observer.ObserveEventProcessingDuration(string(event.Type), time.Since(start))

	log.Info("Processed call event",
		zap.String("external_call_id", saved.ExternalCallID),
		zap.String("status", saved.Status),
		zap.String("event_type", string(event.Type)),
		zap.Bool("contact_found", saved.ContactFound()),
		zap.Int("points", saved.Points),
	)

	return &ProcessResult{
		Call:         saved,
		EventType:    event.Type,
		ContactFound: saved.ContactFound(),
		ContactName:  saved.ContactName,
		Connections:  s.publisher.Count(),
	}, nil
}

// resolveContact looks the external party up in the CRM. The lookup is
// time-bounded; any failure is logged and collapsed into "no match" so that
// ingestion continues.
func (s *CallService) resolveContact(ctx context.Context, payload model.CallEventPayload) *crm.Contact {
	log := logger.FromContext(ctx)

	number := payload.LookupNumber()
	if number == "" {
		observer.IncContactResolution("unmatched")
		return nil
	}

	resolveCtx, cancel := context.WithTimeout(ctx, s.resolveTimeout)
	defer cancel()

	formats := phone.Normalize(number)
	contact, err := s.resolver.ResolveByPhone(resolveCtx, formats)
	if err != nil {
		// Distinct from a legitimate miss for observability, same outcome
		// for the caller.
		observer.IncContactResolution("error")
		if errors.Is(err, apperrors.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			log.Warn("Contact resolution unavailable, continuing without match",
				zap.String("number", number),
				zap.Error(err),
			)
		} else {
			log.Error("Contact resolution failed, continuing without match",
				zap.String("number", number),
				zap.Error(err),
			)
		}
		return nil
	}
	if contact == nil {
		observer.IncContactResolution("unmatched")
		log.Debug("No contact matched", zap.String("number", number))
		return nil
	}

	observer.IncContactResolution("matched")
	return contact
}
