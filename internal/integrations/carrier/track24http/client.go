package track24http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BearBump/ParcelBox/internal/integrations/carrier"
	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/pkg/errors"
)

const (
	Code       = "track24"
	timeLayout = "02.01.2006 15:04:05"
)

var Aliases = []string{"track-24"}

// Statuses классифицирует operationType из ответа Track24.
var Statuses = models.StatusTable{
	"ACCEPTED":          models.DeliveryStatusInProgress,
	"IN_TRANSIT":        models.DeliveryStatusInProgress,
	"SORTING":           models.DeliveryStatusInProgress,
	"ARRIVED":           models.DeliveryStatusInProgress,
	"HANDED_TO_COURIER": models.DeliveryStatusInProgress,
	"DELIVERED":         models.DeliveryStatusCompleted,
}

type Client struct {
	baseURL string
	apiKey  string
	domain  string
	httpc   *http.Client
}

func New(baseURL, apiKey, domain string, httpc *http.Client) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9000"
	}
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		domain:  domain,
		httpc:   httpc,
	}
}

type track24Resp struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Events []struct {
			OperationDateTime        string `json:"operationDateTime"`
			OperationAttribute       string `json:"operationAttribute"`
			OperationType            string `json:"operationType"`
			OperationPlaceName       string `json:"operationPlaceName"`
			OperationPlacePostalCode string `json:"operationPlacePostalCode"`
			Source                   string `json:"source"`
		} `json:"events"`
	} `json:"data"`
}

func (c *Client) Fetch(ctx context.Context, trackingNumber string) (*models.Parcel, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, carrier.NewSourceError(Code, "parse base url", err)
	}
	u.Path = "/tracking.json.php"

	q := u.Query()
	q.Set("apiKey", c.apiKey)
	q.Set("domain", c.domain)
	q.Set("code", trackingNumber)
	q.Set("pretty", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, carrier.NewSourceError(Code, "new request", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, carrier.NewSourceError(Code, "do request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, carrier.NewSourceError(Code, "tracking", fmt.Errorf("http %d", resp.StatusCode))
	}

	var r track24Resp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, carrier.NewSourceError(Code, "tracking", errors.Wrap(err, "decode"))
	}
	switch {
	case r.Status == "ok":
	case isNotFound(r.Message):
		return nil, carrier.NewSourceError(Code, "tracking", carrier.ErrNotFound)
	default:
		return nil, carrier.NewSourceError(Code, "tracking", fmt.Errorf("status=%s message=%s", r.Status, r.Message))
	}

	events := make([]models.TrackingEvent, 0, len(r.Data.Events))
	for _, e := range r.Data.Events {
		// Track24 пример: "02.07.2014 19:16:00", время без зоны, считаем UTC
		t, err := time.ParseInLocation(timeLayout, e.OperationDateTime, time.UTC)
		if err != nil {
			return nil, carrier.NewSourceError(Code, "parse event time", err)
		}
		loc := e.OperationPlaceName
		if e.OperationPlacePostalCode != "" {
			loc = strings.TrimSpace(loc + " " + e.OperationPlacePostalCode)
		}
		events = append(events, models.TrackingEvent{
			Time:     t,
			Status:   strings.ToUpper(strings.TrimSpace(e.OperationType)),
			Location: loc,
			Detail:   e.OperationAttribute,
		})
	}
	carrier.SortEvents(events)

	return models.NewParcel(Statuses, Code, trackingNumber, events), nil
}

func isNotFound(msg string) bool {
	low := strings.ToLower(msg)
	return strings.Contains(low, "not found") || strings.Contains(low, "не найден")
}
