package service

import (
	"github.com/asaskevich/EventBus"
	"github.com/talkincode/ispcare/internal/domain"
)

const (
	TopicTicketCreated  = "ticket.created"
	TopicTicketStatus   = "ticket.status"
	TopicRequestCreated = "request.created"
	TopicRequestDecided = "request.decided"
)

type TicketEvent struct {
	Ticket   domain.Ticket
	Previous string
}

type RequestEvent struct {
	Request domain.CustomerRequest
}

// Events is the in-process bus services publish domain events on.
type Events struct {
	bus EventBus.Bus
}

func NewEvents() *Events {
	return &Events{bus: EventBus.New()}
}

func (e *Events) Publish(topic string, event interface{}) {
	if e == nil {
		return
	}
	e.bus.Publish(topic, event)
}

func (e *Events) OnTicketCreated(fn func(TicketEvent)) error {
	return e.bus.Subscribe(TopicTicketCreated, fn)
}

func (e *Events) OnTicketStatus(fn func(TicketEvent)) error {
	return e.bus.Subscribe(TopicTicketStatus, fn)
}

func (e *Events) OnRequestCreated(fn func(RequestEvent)) error {
	return e.bus.Subscribe(TopicRequestCreated, fn)
}

func (e *Events) OnRequestDecided(fn func(RequestEvent)) error {
	return e.bus.Subscribe(TopicRequestDecided, fn)
}
