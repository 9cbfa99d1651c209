package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BearBump/ParcelBox/internal/integrations/carrier"
	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/services/trackers"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type serviceMock struct {
	mock.Mock
}

func (m *serviceMock) AddTracker(ctx context.Context, subscriberID int64, carrierName, trackingNumber string) (*models.Tracker, *models.Parcel, error) {
	args := m.Called(ctx, subscriberID, carrierName, trackingNumber)
	t, _ := args.Get(0).(*models.Tracker)
	p, _ := args.Get(1).(*models.Parcel)
	return t, p, args.Error(2)
}

func (m *serviceMock) DeleteTracker(ctx context.Context, subscriberID, id int64) error {
	return m.Called(ctx, subscriberID, id).Error(0)
}

func (m *serviceMock) ListTrackers(ctx context.Context, subscriberID int64) ([]trackers.TrackerView, error) {
	args := m.Called(ctx, subscriberID)
	v, _ := args.Get(0).([]trackers.TrackerView)
	return v, args.Error(1)
}

func (m *serviceMock) ConfirmCompletion(ctx context.Context, subscriberID int64, a models.CompletionAction) (trackers.Result, error) {
	args := m.Called(ctx, subscriberID, a)
	return args.Get(0).(trackers.Result), args.Error(1)
}

func (m *serviceMock) Carriers() []string {
	return []string{"cj", "epost"}
}

func TestCommands_Help(t *testing.T) {
	c := NewCommands(&serviceMock{}, nil)
	out := c.Dispatch(context.Background(), 1, "/help")
	require.Len(t, out, 1)
	require.Contains(t, out[0], "/add <company> <tracking_number>")
	require.Contains(t, out[0], "Companies: cj, epost")

	require.Equal(t, out, c.Dispatch(context.Background(), 1, "/whatever"))
	require.Equal(t, out, c.Dispatch(context.Background(), 1, "   "))
}

func TestCommands_List(t *testing.T) {
	svc := &serviceMock{}
	c := NewCommands(svc, nil)

	svc.On("ListTrackers", mock.Anything, int64(1)).Return([]trackers.TrackerView{}, nil).Once()
	require.Equal(t, []string{msgEmptyList}, c.Dispatch(context.Background(), 1, "/list"))

	added := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	svc.On("ListTrackers", mock.Anything, int64(2)).Return([]trackers.TrackerView{
		{Tracker: &models.Tracker{ID: 4, Carrier: "cj", TrackingNumber: "6000", AddedAt: added}, Item: "Keyboard"},
		{Tracker: &models.Tracker{ID: 9, Carrier: "epost", TrackingNumber: "68967", AddedAt: added}},
	}, nil).Once()
	out := c.Dispatch(context.Background(), 2, "/list@ParcelBoxBot")
	require.Equal(t, []string{
		"Index: 4\nCompany: cj\nTracking number: 6000\nItem: Keyboard\nAdded time: 2024-03-01 00:00:00 UTC",
		"Index: 9\nCompany: epost\nTracking number: 68967\nItem: \nAdded time: 2024-03-01 00:00:00 UTC",
	}, out)

	svc.On("ListTrackers", mock.Anything, int64(3)).Return(nil, errors.New("db down")).Once()
	require.Equal(t, []string{msgInternal}, c.List(context.Background(), 3))
}

func TestCommands_Add(t *testing.T) {
	svc := &serviceMock{}
	c := NewCommands(svc, nil)

	table := models.StatusTable{"배송출발": models.DeliveryStatusInProgress}
	p := models.NewParcel(table, "cj", "6000", []models.TrackingEvent{{Time: time.Now(), Status: "배송출발"}})
	p.Sender, p.Receiver, p.Item = "Kim", "Lee", "Keyboard"
	svc.On("AddTracker", mock.Anything, int64(1), "CJ대한통운", "6000").
		Return(&models.Tracker{ID: 1, Carrier: "cj", TrackingNumber: "6000"}, p, nil).Once()

	out := c.Dispatch(context.Background(), 1, "/add CJ대한통운 6000")
	require.Equal(t, []string{
		"Added Tracker\nCompany: cj\nTracking number: 6000",
		"Sender: Kim\nReceiver: Lee\nItem: Keyboard\nDelivery Status: IN_PROGRESS",
	}, out)

	require.Equal(t, []string{msgAddUsage}, c.Dispatch(context.Background(), 1, "/add cj"))

	cases := map[string]error{
		msgInvalidCarrier: trackers.ErrInvalidCarrier,
		msgNotFound:       &trackers.FetchError{Err: carrier.NewSourceError("cj", "waybill", carrier.ErrNotFound)},
		msgFetchFailed:    &trackers.FetchError{Err: carrier.NewSourceError("cj", "do request", errors.New("timeout"))},
		msgInternal:       errors.New("db down"),
	}
	for want, err := range cases {
		svc.On("AddTracker", mock.Anything, int64(5), "x", "y").Return(nil, nil, err).Once()
		require.Equal(t, []string{want}, c.Add(context.Background(), 5, []string{"x", "y"}))
	}
}

func TestCommands_Delete(t *testing.T) {
	svc := &serviceMock{}
	c := NewCommands(svc, nil)

	svc.On("DeleteTracker", mock.Anything, int64(1), int64(4)).Return(nil).Once()
	require.Equal(t, []string{"Deleted tracker 4"}, c.Dispatch(context.Background(), 1, "/delete 4"))

	require.Equal(t, []string{msgDeleteUsage}, c.Dispatch(context.Background(), 1, "/delete"))
	require.Equal(t, []string{msgDeleteUsage}, c.Dispatch(context.Background(), 1, "/delete abc"))
	require.Equal(t, []string{msgDeleteUsage}, c.Dispatch(context.Background(), 1, "/delete -4"))

	svc.On("DeleteTracker", mock.Anything, int64(1), int64(5)).Return(errors.New("db down")).Once()
	require.Equal(t, []string{msgInternal}, c.Delete(context.Background(), 1, []string{"5"}))
	svc.AssertExpectations(t)
}

func TestCommands_Callback(t *testing.T) {
	svc := &serviceMock{}
	c := NewCommands(svc, nil)

	keep := models.CompletionAction{TrackerID: 3, Action: models.ActionKeep}
	del := models.CompletionAction{TrackerID: 3, Action: models.ActionDelete}
	svc.On("ConfirmCompletion", mock.Anything, int64(1), keep).Return(trackers.Result{Applied: true}, nil).Once()
	svc.On("ConfirmCompletion", mock.Anything, int64(1), del).Return(trackers.Result{Applied: true}, nil).Once()

	require.Equal(t, msgKept, c.Callback(context.Background(), 1, "cc:keep:3"))
	require.Equal(t, msgDeleted, c.Callback(context.Background(), 1, "cc:delete:3"))
	require.Equal(t, msgUnknownAction, c.Callback(context.Background(), 1, "-3"))

	svc.On("ConfirmCompletion", mock.Anything, int64(2), keep).Return(trackers.Result{}, errors.New("db down")).Once()
	require.Equal(t, msgInternal, c.Callback(context.Background(), 2, "cc:keep:3"))
	svc.AssertExpectations(t)
}

func TestCommands_Callback_NotApplied(t *testing.T) {
	svc := &serviceMock{}
	c := NewCommands(svc, nil)

	keep := models.CompletionAction{TrackerID: 9, Action: models.ActionKeep}
	del := models.CompletionAction{TrackerID: 9, Action: models.ActionDelete}
	svc.On("ConfirmCompletion", mock.Anything, int64(1), keep).Return(trackers.Result{Applied: false}, nil).Once()
	svc.On("ConfirmCompletion", mock.Anything, int64(1), del).Return(trackers.Result{Applied: false}, nil).Once()

	require.Equal(t, msgTrackerGone, c.Callback(context.Background(), 1, "cc:keep:9"))
	require.Equal(t, msgTrackerGone, c.Callback(context.Background(), 1, "cc:delete:9"))
	svc.AssertExpectations(t)
}
