package trackers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BearBump/ParcelBox/internal/cache"
	cachemocks "github.com/BearBump/ParcelBox/internal/cache/mocks"
	"github.com/BearBump/ParcelBox/internal/integrations/carrier"
	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	trackersmocks "github.com/BearBump/ParcelBox/internal/services/trackers/mocks"
)

var (
	kst   = time.FixedZone("KST", 9*60*60)
	table = models.StatusTable{"배송출발": models.DeliveryStatusInProgress, "배송완료": models.DeliveryStatusCompleted}
)

type ServiceSuite struct {
	suite.Suite

	store    *trackersmocks.MockStore
	registry *trackersmocks.MockRegistry
	cache    *cachemocks.MockBytesCache
	svc      *Service
}

func (s *ServiceSuite) SetupTest() {
	s.store = &trackersmocks.MockStore{}
	s.registry = &trackersmocks.MockRegistry{}
	s.cache = &cachemocks.MockBytesCache{}
	s.svc = New(s.store, s.registry, nil, nil).WithSnapshotCache(s.cache, 10*time.Minute)
}

func (s *ServiceSuite) TestAddTracker_StoresCurrentWatermark() {
	last := time.Date(2024, 3, 2, 8, 10, 0, 0, kst)
	p := models.NewParcel(table, "cj", "6000", []models.TrackingEvent{{Time: last, Status: "배송출발"}})
	p.Item = "Keyboard"

	s.registry.On("Resolve", "CJ대한통운").Return("cj", nil).Once()
	s.registry.On("Fetch", mock.Anything, "cj", "6000").Return(p, nil).Once()
	s.store.On("CreateTracker", mock.Anything, models.TrackerCreateInput{
		SubscriberID: 7, Carrier: "cj", TrackingNumber: "6000", LastObservedEventTime: last,
	}).Return(&models.Tracker{ID: 1, SubscriberID: 7, Carrier: "cj", TrackingNumber: "6000"}, nil).Once()
	s.cache.On("Set", mock.Anything, cache.SnapshotKey(1), mock.Anything, 10*time.Minute).Return(nil).Once()

	tr, got, err := s.svc.AddTracker(context.Background(), 7, " CJ대한통운 ", " 6000 ")
	s.Require().NoError(err)
	s.Require().Equal(int64(1), tr.ID)
	s.Require().Same(p, got)
	s.store.AssertExpectations(s.T())
	s.registry.AssertExpectations(s.T())
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestAddTracker_NoEventsStartsAtEpoch() {
	p := models.NewParcel(table, "cj", "6000", nil)
	s.registry.On("Resolve", "cj").Return("cj", nil).Once()
	s.registry.On("Fetch", mock.Anything, "cj", "6000").Return(p, nil).Once()
	s.store.On("CreateTracker", mock.Anything, mock.MatchedBy(func(in models.TrackerCreateInput) bool {
		return in.LastObservedEventTime.Equal(models.Epoch)
	})).Return(&models.Tracker{ID: 2}, nil).Once()
	s.cache.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down")).Once()

	_, _, err := s.svc.AddTracker(context.Background(), 7, "cj", "6000")
	s.Require().NoError(err)
	s.store.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestAddTracker_InvalidCarrier_NoFetchNoStore() {
	s.registry.On("Resolve", "dhl").Return("", carrier.ErrUnknownCarrier).Once()

	_, _, err := s.svc.AddTracker(context.Background(), 7, "dhl", "1")
	s.Require().ErrorIs(err, ErrInvalidCarrier)

	_, _, err = s.svc.AddTracker(context.Background(), 7, "  ", "1")
	s.Require().ErrorIs(err, ErrInvalidCarrier)

	_, _, err = s.svc.AddTracker(context.Background(), 7, "cj", "")
	s.Require().ErrorIs(err, ErrInvalidTrackingNumber)

	s.registry.AssertNotCalled(s.T(), "Fetch", mock.Anything, mock.Anything, mock.Anything)
	s.store.AssertNotCalled(s.T(), "CreateTracker", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestAddTracker_FetchFailed_NotStored() {
	srcErr := carrier.NewSourceError("cj", "waybill", carrier.ErrNotFound)
	s.registry.On("Resolve", "cj").Return("cj", nil).Once()
	s.registry.On("Fetch", mock.Anything, "cj", "404").Return(nil, srcErr).Once()

	_, _, err := s.svc.AddTracker(context.Background(), 7, "cj", "404")
	s.Require().ErrorIs(err, ErrFetchFailed)
	s.Require().True(carrier.IsNotFound(err))
	s.store.AssertNotCalled(s.T(), "CreateTracker", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestAddTracker_StoreError() {
	s.registry.On("Resolve", "cj").Return("cj", nil).Once()
	s.registry.On("Fetch", mock.Anything, "cj", "1").Return(models.NewParcel(table, "cj", "1", nil), nil).Once()
	s.store.On("CreateTracker", mock.Anything, mock.Anything).Return(nil, errors.New("db down")).Once()

	_, _, err := s.svc.AddTracker(context.Background(), 7, "cj", "1")
	s.Require().EqualError(err, "db down")
	s.cache.AssertNotCalled(s.T(), "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestDeleteTracker_ScopedNoOp() {
	s.store.On("DeleteTracker", mock.Anything, int64(5), int64(7)).Return(false, nil).Once()
	s.Require().NoError(s.svc.DeleteTracker(context.Background(), 7, 5))

	s.store.On("DeleteTracker", mock.Anything, int64(6), int64(7)).Return(false, errors.New("db down")).Once()
	s.Require().Error(s.svc.DeleteTracker(context.Background(), 7, 6))
	s.store.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestListTrackers_CacheThenLiveFallback() {
	ts := []*models.Tracker{
		{ID: 1, Carrier: "cj", TrackingNumber: "A"},
		{ID: 2, Carrier: "epost", TrackingNumber: "B"},
		{ID: 3, Carrier: "cj", TrackingNumber: "C"},
	}
	s.store.On("ListTrackersBySubscriber", mock.Anything, int64(7)).Return(ts, nil).Once()

	cached, _ := json.Marshal(&models.Parcel{Item: "Keyboard"})
	s.cache.On("Get", mock.Anything, cache.SnapshotKey(1)).Return(cached, true, nil).Once()
	s.cache.On("Get", mock.Anything, cache.SnapshotKey(2)).Return([]byte(nil), false, nil).Once()
	s.cache.On("Get", mock.Anything, cache.SnapshotKey(3)).Return([]byte(nil), false, errors.New("redis down")).Once()

	live := models.NewParcel(table, "epost", "B", nil)
	live.Item = "Book"
	s.registry.On("Fetch", mock.Anything, "epost", "B").Return(live, nil).Once()
	s.cache.On("Set", mock.Anything, cache.SnapshotKey(2), mock.Anything, 10*time.Minute).Return(nil).Once()
	s.registry.On("Fetch", mock.Anything, "cj", "C").Return(nil, errors.New("timeout")).Once()

	out, err := s.svc.ListTrackers(context.Background(), 7)
	s.Require().NoError(err)
	s.Require().Len(out, 3)
	s.Require().Equal("Keyboard", out[0].Item)
	s.Require().Equal("Book", out[1].Item)
	s.Require().Equal("", out[2].Item)
	s.Require().Equal(int64(3), out[2].Tracker.ID)
	s.registry.AssertNotCalled(s.T(), "Fetch", mock.Anything, "cj", "A")
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestListTrackers_Empty() {
	s.store.On("ListTrackersBySubscriber", mock.Anything, int64(7)).Return([]*models.Tracker{}, nil).Once()
	out, err := s.svc.ListTrackers(context.Background(), 7)
	s.Require().NoError(err)
	s.Require().Empty(out)
}

func (s *ServiceSuite) TestConfirmCompletion_Keep() {
	s.store.On("SetRetain", mock.Anything, int64(3), int64(7), true).Return(true, nil).Once()

	res, err := s.svc.ConfirmCompletion(context.Background(), 7, models.CompletionAction{TrackerID: 3, Action: models.ActionKeep})
	s.Require().NoError(err)
	s.Require().Equal(Result{TrackerID: 3, Action: models.ActionKeep, Applied: true}, res)
	s.store.AssertNotCalled(s.T(), "DeleteTracker", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestConfirmCompletion_DeleteForeignIsNoOp() {
	s.store.On("DeleteTracker", mock.Anything, int64(3), int64(8)).Return(false, nil).Once()

	res, err := s.svc.ConfirmCompletion(context.Background(), 8, models.CompletionAction{TrackerID: 3, Action: models.ActionDelete})
	s.Require().NoError(err)
	s.Require().False(res.Applied)
	s.store.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestConfirmCompletion_Invalid() {
	_, err := s.svc.ConfirmCompletion(context.Background(), 7, models.CompletionAction{TrackerID: 0, Action: models.ActionKeep})
	s.Require().Error(err)
	_, err = s.svc.ConfirmCompletion(context.Background(), 7, models.CompletionAction{TrackerID: 1, Action: "drop"})
	s.Require().Error(err)
	s.store.AssertNotCalled(s.T(), "SetRetain", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
