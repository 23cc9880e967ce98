package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gdg-garage/garage-rsvp-api/internal/admission"
	"github.com/gdg-garage/garage-rsvp-api/internal/apierr"
	"github.com/gdg-garage/garage-rsvp-api/internal/auth"
	"github.com/gdg-garage/garage-rsvp-api/internal/events"
	"github.com/gdg-garage/garage-rsvp-api/internal/models"
)

type RSVPHandler struct {
	admission *admission.Controller
	events    *events.Service
}

func NewRSVPHandler(ctrl *admission.Controller, svc *events.Service) *RSVPHandler {
	return &RSVPHandler{admission: ctrl, events: svc}
}

type CheckRSVPOutput struct {
	Body struct {
		HasJoined bool `json:"hasJoined"`
	}
}

type AttendeesOutput struct {
	Body []events.Attendee
}

type HistoryOutput struct {
	Body []models.RSVPHistory
}

func (h *RSVPHandler) HandleJoin(ctx context.Context, input *EventPathInput) (*EventMessageOutput, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	event, err := h.admission.Join(ctx, userID, input.ID)
	if err != nil {
		return nil, apierr.From(err)
	}

	out := &EventMessageOutput{}
	out.Body.Message = "Successfully joined the event"
	out.Body.Event = newEventView(event)
	return out, nil
}

func (h *RSVPHandler) HandleLeave(ctx context.Context, input *EventPathInput) (*EventMessageOutput, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	event, err := h.admission.Leave(ctx, userID, input.ID)
	if err != nil {
		return nil, apierr.From(err)
	}

	out := &EventMessageOutput{}
	out.Body.Message = "Successfully left the event"
	if event == nil {
		out.Body.Message = "Event no longer exists"
	}
	out.Body.Event = newEventView(event)
	return out, nil
}

func (h *RSVPHandler) HandleCheck(ctx context.Context, input *EventPathInput) (*CheckRSVPOutput, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	joined, err := h.events.CheckRSVP(ctx, userID, input.ID)
	if err != nil {
		return nil, apierr.From(err)
	}
	out := &CheckRSVPOutput{}
	out.Body.HasJoined = joined
	return out, nil
}

func (h *RSVPHandler) HandleAttendees(ctx context.Context, input *EventPathInput) (*AttendeesOutput, error) {
	attendees, err := h.events.ListAttendees(ctx, input.ID)
	if err != nil {
		return nil, apierr.From(err)
	}
	return &AttendeesOutput{Body: attendees}, nil
}

func (h *RSVPHandler) HandleHistory(ctx context.Context, input *struct{}) (*HistoryOutput, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	history, err := h.events.History(ctx, userID)
	if err != nil {
		return nil, apierr.From(err)
	}
	return &HistoryOutput{Body: history}, nil
}

func (h *RSVPHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "join-event",
		Method:      http.MethodPost,
		Path:        "/events/{id}/join",
		Summary:     "RSVP to an event",
		Tags:        []string{"RSVP"},
		Security:    authenticated,
	}, h.HandleJoin)

	huma.Register(api, huma.Operation{
		OperationID: "leave-event",
		Method:      http.MethodPost,
		Path:        "/events/{id}/leave",
		Summary:     "Withdraw an RSVP",
		Tags:        []string{"RSVP"},
		Security:    authenticated,
	}, h.HandleLeave)

	huma.Register(api, huma.Operation{
		OperationID: "check-rsvp",
		Method:      http.MethodGet,
		Path:        "/events/{id}/check-rsvp",
		Summary:     "Check whether you have joined an event",
		Tags:        []string{"RSVP"},
		Security:    authenticated,
	}, h.HandleCheck)

	huma.Register(api, huma.Operation{
		OperationID: "list-attendees",
		Method:      http.MethodGet,
		Path:        "/events/{id}/attendees",
		Summary:     "List attendees in join order",
		Tags:        []string{"RSVP"},
	}, h.HandleAttendees)

	huma.Register(api, huma.Operation{
		OperationID: "rsvp-history",
		Method:      http.MethodGet,
		Path:        "/me/history",
		Summary:     "Your RSVP history, newest first",
		Tags:        []string{"RSVP"},
		Security:    authenticated,
	}, h.HandleHistory)
}
