package models

import (
	"time"
)

// DeliveryStatus is the coarse classification every carrier vocabulary reduces to.
type DeliveryStatus string

const (
	DeliveryStatusInProgress DeliveryStatus = "IN_PROGRESS"
	DeliveryStatusCompleted  DeliveryStatus = "COMPLETED"
	DeliveryStatusUnknown    DeliveryStatus = "UNKNOWN"
)

// Epoch is the last-event time of a parcel without events.
var Epoch = time.Unix(0, 0).UTC()

// TrackingEvent is one immutable checkpoint as reported by the carrier.
// Time keeps the carrier's zone offset.
type TrackingEvent struct {
	Time     time.Time `json:"time"`
	Status   string    `json:"status"`
	Location string    `json:"location,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

// StatusTable maps a carrier's raw status label to a DeliveryStatus.
// Labels missing from the table classify as Unknown.
type StatusTable map[string]DeliveryStatus

// Classify reduces the last event of events to a DeliveryStatus.
func (t StatusTable) Classify(events []TrackingEvent) DeliveryStatus {
	if len(events) == 0 {
		return DeliveryStatusUnknown
	}
	if st, ok := t[events[len(events)-1].Status]; ok {
		return st
	}
	return DeliveryStatusUnknown
}

// Parcel is a normalized snapshot produced by one fetch.
// DeliveryStatus and LastEventTime are derived from Events on every call.
type Parcel struct {
	Carrier        string          `json:"carrier"`
	TrackingNumber string          `json:"tracking_number"`
	Sender         string          `json:"sender,omitempty"`
	Receiver       string          `json:"receiver,omitempty"`
	Item           string          `json:"item,omitempty"`
	Events         []TrackingEvent `json:"events"`

	table StatusTable
}

func NewParcel(table StatusTable, carrier, trackingNumber string, events []TrackingEvent) *Parcel {
	if events == nil {
		events = []TrackingEvent{}
	}
	return &Parcel{
		Carrier:        carrier,
		TrackingNumber: trackingNumber,
		Events:         events,
		table:          table,
	}
}

func (p *Parcel) DeliveryStatus() DeliveryStatus {
	return p.table.Classify(p.Events)
}

func (p *Parcel) LastEventTime() time.Time {
	if ev, ok := p.LastEvent(); ok {
		return ev.Time
	}
	return Epoch
}

func (p *Parcel) LastEvent() (TrackingEvent, bool) {
	if len(p.Events) == 0 {
		return TrackingEvent{}, false
	}
	return p.Events[len(p.Events)-1], true
}

type Tracker struct {
	ID                    int64     `json:"id"`
	SubscriberID          int64     `json:"subscriber_id"`
	Carrier               string    `json:"carrier"`
	TrackingNumber        string    `json:"tracking_number"`
	AddedAt               time.Time `json:"added_at"`
	LastObservedEventTime time.Time `json:"last_observed_event_time"`
	Retain                bool      `json:"retain"`
}

type TrackerCreateInput struct {
	SubscriberID          int64
	Carrier               string
	TrackingNumber        string
	LastObservedEventTime time.Time
}
