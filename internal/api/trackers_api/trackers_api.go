package trackers_api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/BearBump/ParcelBox/internal/integrations/carrier"
	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/services/trackers"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Service interface {
	AddTracker(ctx context.Context, subscriberID int64, carrier, trackingNumber string) (*models.Tracker, *models.Parcel, error)
	DeleteTracker(ctx context.Context, subscriberID, id int64) error
	ListTrackers(ctx context.Context, subscriberID int64) ([]trackers.TrackerView, error)
	ConfirmCompletion(ctx context.Context, subscriberID int64, a models.CompletionAction) (trackers.Result, error)
}

type TrackersAPI struct {
	svc Service
	log *zap.Logger
}

func New(svc Service, log *zap.Logger) *TrackersAPI {
	if log == nil {
		log = zap.NewNop()
	}
	return &TrackersAPI{svc: svc, log: log}
}

// Register mounts the subscriber-scoped tracker routes on r.
func (a *TrackersAPI) Register(r chi.Router) {
	r.Route("/v1/subscribers/{subscriberID}/trackers", func(r chi.Router) {
		r.Get("/", a.list)
		r.Post("/", a.create)
		r.Delete("/{id}", a.delete)
		r.Post("/{id}/completion", a.completion)
	})
}

type trackerDTO struct {
	ID                    int64     `json:"id"`
	SubscriberID          int64     `json:"subscriber_id"`
	Carrier               string    `json:"carrier"`
	TrackingNumber        string    `json:"tracking_number"`
	Item                  string    `json:"item,omitempty"`
	AddedAt               time.Time `json:"added_at"`
	LastObservedEventTime time.Time `json:"last_observed_event_time"`
	Retain                bool      `json:"retain"`
}

type parcelDTO struct {
	Carrier        string                 `json:"carrier"`
	TrackingNumber string                 `json:"tracking_number"`
	Sender         string                 `json:"sender,omitempty"`
	Receiver       string                 `json:"receiver,omitempty"`
	Item           string                 `json:"item,omitempty"`
	DeliveryStatus models.DeliveryStatus  `json:"delivery_status"`
	LastEventTime  time.Time              `json:"last_event_time"`
	Events         []models.TrackingEvent `json:"events"`
}

type createRequest struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
}

type createResponse struct {
	Tracker trackerDTO `json:"tracker"`
	Parcel  parcelDTO  `json:"parcel"`
}

type completionRequest struct {
	Action string `json:"action"`
}

func (a *TrackersAPI) list(w http.ResponseWriter, r *http.Request) {
	sub, ok := subscriberID(w, r)
	if !ok {
		return
	}
	views, err := a.svc.ListTrackers(r.Context(), sub)
	if err != nil {
		a.internal(w, err)
		return
	}
	out := make([]trackerDTO, 0, len(views))
	for _, v := range views {
		dto := toTrackerDTO(v.Tracker)
		dto.Item = v.Item
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, map[string]any{"trackers": out})
}

func (a *TrackersAPI) create(w http.ResponseWriter, r *http.Request) {
	sub, ok := subscriberID(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	t, p, err := a.svc.AddTracker(r.Context(), sub, req.Carrier, req.TrackingNumber)
	switch {
	case err == nil:
	case errors.Is(err, trackers.ErrInvalidCarrier), errors.Is(err, trackers.ErrInvalidTrackingNumber):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case carrier.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, trackers.ErrFetchFailed):
		writeError(w, http.StatusBadGateway, err.Error())
		return
	default:
		a.internal(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createResponse{
		Tracker: toTrackerDTO(t),
		Parcel: parcelDTO{
			Carrier:        p.Carrier,
			TrackingNumber: p.TrackingNumber,
			Sender:         p.Sender,
			Receiver:       p.Receiver,
			Item:           p.Item,
			DeliveryStatus: p.DeliveryStatus(),
			LastEventTime:  p.LastEventTime(),
			Events:         p.Events,
		},
	})
}

func (a *TrackersAPI) delete(w http.ResponseWriter, r *http.Request) {
	sub, ok := subscriberID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	// чужой или несуществующий трекер — тоже 204
	if err := a.svc.DeleteTracker(r.Context(), sub, id); err != nil {
		a.internal(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *TrackersAPI) completion(w http.ResponseWriter, r *http.Request) {
	sub, ok := subscriberID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	kind, err := models.ParseActionKind(req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.svc.ConfirmCompletion(r.Context(), sub, models.CompletionAction{TrackerID: id, Action: kind})
	if err != nil {
		a.internal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *TrackersAPI) internal(w http.ResponseWriter, err error) {
	a.log.Error("trackers api", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func subscriberID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, "subscriberID"), 10, 64)
	if err != nil || v == 0 {
		writeError(w, http.StatusBadRequest, "invalid subscriberID")
		return 0, false
	}
	return v, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || v <= 0 {
		writeError(w, http.StatusBadRequest, "invalid tracker id")
		return 0, false
	}
	return v, true
}

func toTrackerDTO(t *models.Tracker) trackerDTO {
	return trackerDTO{
		ID:                    t.ID,
		SubscriberID:          t.SubscriberID,
		Carrier:               t.Carrier,
		TrackingNumber:        t.TrackingNumber,
		AddedAt:               t.AddedAt,
		LastObservedEventTime: t.LastObservedEventTime,
		Retain:                t.Retain,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
