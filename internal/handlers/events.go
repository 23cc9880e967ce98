package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gdg-garage/garage-rsvp-api/internal/apierr"
	"github.com/gdg-garage/garage-rsvp-api/internal/auth"
	"github.com/gdg-garage/garage-rsvp-api/internal/events"
	"github.com/gdg-garage/garage-rsvp-api/internal/models"
)

type EventHandler struct {
	events *events.Service
}

func NewEventHandler(svc *events.Service) *EventHandler {
	return &EventHandler{events: svc}
}

// EventView is an event as rendered to clients.
type EventView struct {
	models.Event
	CreatorName string `json:"creatorName,omitempty"`
}

func newEventView(e *models.Event) *EventView {
	if e == nil {
		return nil
	}
	return &EventView{Event: *e, CreatorName: e.Creator.Username}
}

type EventPathInput struct {
	ID string `path:"id" maxLength:"36" doc:"Event ID"`
}

type EventOutput struct {
	Body *EventView
}

type EventMessageOutput struct {
	Body struct {
		Message string     `json:"message"`
		Event   *EventView `json:"event"`
	}
}

type ListEventsOutput struct {
	Body []*EventView
}

type CreateEventInput struct {
	Body struct {
		Title       string    `json:"title" minLength:"1" maxLength:"200" doc:"Event title"`
		Description string    `json:"description" minLength:"1" doc:"What the event is about"`
		Date        time.Time `json:"date" doc:"Start time (RFC 3339)"`
		Location    string    `json:"location" minLength:"1" maxLength:"200" doc:"Where it happens"`
		Capacity    int       `json:"capacity" minimum:"1" maximum:"100000" doc:"Maximum number of attendees"`
	}
}

type UpdateEventInput struct {
	ID   string `path:"id" maxLength:"36"`
	Body struct {
		Title       *string    `json:"title,omitempty" minLength:"1" maxLength:"200"`
		Description *string    `json:"description,omitempty" minLength:"1"`
		Date        *time.Time `json:"date,omitempty"`
		Location    *string    `json:"location,omitempty" minLength:"1" maxLength:"200"`
		Capacity    *int       `json:"capacity,omitempty" minimum:"1" maximum:"100000"`
	}
}

type MessageOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

func (h *EventHandler) HandleList(ctx context.Context, input *struct{}) (*ListEventsOutput, error) {
	list, err := h.events.ListUpcoming(ctx)
	if err != nil {
		return nil, apierr.From(err)
	}
	out := &ListEventsOutput{Body: make([]*EventView, 0, len(list))}
	for i := range list {
		out.Body = append(out.Body, newEventView(&list[i]))
	}
	return out, nil
}

func (h *EventHandler) HandleGet(ctx context.Context, input *EventPathInput) (*EventOutput, error) {
	event, err := h.events.GetByID(ctx, input.ID)
	if err != nil {
		return nil, apierr.From(err)
	}
	return &EventOutput{Body: newEventView(event)}, nil
}

func (h *EventHandler) HandleCreate(ctx context.Context, input *CreateEventInput) (*EventMessageOutput, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	event, err := h.events.Create(ctx, userID, events.CreateInput{
		Title:       input.Body.Title,
		Description: input.Body.Description,
		Location:    input.Body.Location,
		Date:        input.Body.Date,
		Capacity:    input.Body.Capacity,
	})
	if err != nil {
		return nil, apierr.From(err)
	}

	out := &EventMessageOutput{}
	out.Body.Message = "Event created successfully"
	out.Body.Event = newEventView(event)
	return out, nil
}

func (h *EventHandler) HandleUpdate(ctx context.Context, input *UpdateEventInput) (*EventMessageOutput, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	event, err := h.events.Update(ctx, userID, input.ID, events.UpdateInput{
		Title:       input.Body.Title,
		Description: input.Body.Description,
		Location:    input.Body.Location,
		Date:        input.Body.Date,
		Capacity:    input.Body.Capacity,
	})
	if err != nil {
		return nil, apierr.From(err)
	}

	out := &EventMessageOutput{}
	out.Body.Message = "Event updated successfully"
	out.Body.Event = newEventView(event)
	return out, nil
}

func (h *EventHandler) HandleDelete(ctx context.Context, input *EventPathInput) (*MessageOutput, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.events.Delete(ctx, userID, input.ID); err != nil {
		return nil, apierr.From(err)
	}
	out := &MessageOutput{}
	out.Body.Message = "Event deleted successfully"
	return out, nil
}

func (h *EventHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List upcoming events",
		Tags:        []string{"Events"},
	}, h.HandleList)

	huma.Register(api, huma.Operation{
		OperationID: "get-event",
		Method:      http.MethodGet,
		Path:        "/events/{id}",
		Summary:     "Get an event",
		Tags:        []string{"Events"},
	}, h.HandleGet)

	huma.Register(api, huma.Operation{
		OperationID:   "create-event",
		Method:        http.MethodPost,
		Path:          "/events",
		Summary:       "Create an event",
		Tags:          []string{"Events"},
		DefaultStatus: http.StatusCreated,
		Security:      authenticated,
	}, h.HandleCreate)

	huma.Register(api, huma.Operation{
		OperationID: "update-event",
		Method:      http.MethodPut,
		Path:        "/events/{id}",
		Summary:     "Update an event you created",
		Tags:        []string{"Events"},
		Security:    authenticated,
	}, h.HandleUpdate)

	huma.Register(api, huma.Operation{
		OperationID: "delete-event",
		Method:      http.MethodDelete,
		Path:        "/events/{id}",
		Summary:     "Delete an event you created together with its RSVPs",
		Tags:        []string{"Events"},
		Security:    authenticated,
	}, h.HandleDelete)
}
