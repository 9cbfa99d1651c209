package fake

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/BearBump/ParcelBox/internal/models"
)

const Code = "fake"

var Statuses = models.StatusTable{
	"ACCEPTED":   models.DeliveryStatusInProgress,
	"IN_TRANSIT": models.DeliveryStatusInProgress,
	"DELIVERED":  models.DeliveryStatusCompleted,
}

// FakeClient — детерминированный "перевозчик" для локального запуска и тестов.
// История зависит только от номера и текущего часа: каждые step приходит новое событие,
// часть треков (каждый пятый по хэшу) доходит до DELIVERED.
type FakeClient struct {
	now  func() time.Time
	step time.Duration
}

func New() *FakeClient {
	return &FakeClient{now: time.Now, step: time.Hour}
}

// WithClock подменяет часы (для тестов).
func (f *FakeClient) WithClock(now func() time.Time) *FakeClient {
	f.now = now
	return f
}

func (f *FakeClient) Fetch(ctx context.Context, trackingNumber string) (*models.Parcel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(trackingNumber))
	v := h.Sum32()

	delivers := v%5 == 0
	// Начало истории сдвинуто на 0..23 часа, чтобы треки "двигались" не синхронно.
	start := f.now().UTC().Truncate(24 * time.Hour).Add(time.Duration(v%24) * time.Hour)
	if start.After(f.now()) {
		start = start.Add(-24 * time.Hour)
	}

	labels := []string{"ACCEPTED", "IN_TRANSIT", "IN_TRANSIT"}
	if delivers {
		labels = append(labels, "DELIVERED")
	}

	var events []models.TrackingEvent
	for i, label := range labels {
		t := start.Add(time.Duration(i) * f.step)
		if t.After(f.now()) {
			break
		}
		events = append(events, models.TrackingEvent{
			Time:     t,
			Status:   label,
			Location: "Fake Hub",
			Detail:   "fake carrier update",
		})
	}

	p := models.NewParcel(Statuses, Code, trackingNumber, events)
	p.Item = "fake parcel"
	return p, nil
}
