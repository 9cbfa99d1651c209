package cjlogistics

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
	Code           = "cj"
	DefaultBaseURL = "https://trace.cjlogistics.com"

	waybillPath = "/next/rest/selectTrackingWaybil.do"
	detailPath  = "/next/rest/selectTrackingDetailList.do"
	timeLayout  = "2006-01-02 15:04:05"
)

// Aliases are the names subscribers commonly type for this carrier.
var Aliases = []string{"CJ대한통운", "cjlogistics", "cj-logistics"}

var kst = time.FixedZone("KST", 9*60*60)

var Statuses = models.StatusTable{
	"집화처리": models.DeliveryStatusInProgress,
	"간선상차": models.DeliveryStatusInProgress,
	"간선하차": models.DeliveryStatusInProgress,
	"행낭포장": models.DeliveryStatusInProgress,
	"배송출발": models.DeliveryStatusInProgress,
	"배송완료": models.DeliveryStatusCompleted,
}

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string, httpc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpc: httpc}
}

type waybillResp struct {
	Data *struct {
		WblNo      string `json:"wblNo"`
		SndrNm     string `json:"sndrNm"`
		RcvrNm     string `json:"rcvrNm"`
		RepGoodsNm string `json:"repGoodsNm"`
	} `json:"data"`
}

type detailResp struct {
	Data *struct {
		SvcOutList []struct {
			WorkDt      string `json:"workDt"`
			WorkHms     string `json:"workHms"`
			CrgStDnm    string `json:"crgStDnm"`
			BranNm      string `json:"branNm"`
			CrgStDcdVal string `json:"crgStDcdVal"`
		} `json:"svcOutList"`
	} `json:"data"`
}

func (c *Client) Fetch(ctx context.Context, trackingNumber string) (*models.Parcel, error) {
	var wb waybillResp
	if err := c.post(ctx, waybillPath, trackingNumber, &wb); err != nil {
		return nil, err
	}
	if wb.Data == nil || strings.TrimSpace(wb.Data.WblNo) == "" {
		return nil, carrier.NewSourceError(Code, "waybill", carrier.ErrNotFound)
	}

	var dr detailResp
	if err := c.post(ctx, detailPath, trackingNumber, &dr); err != nil {
		return nil, err
	}
	if dr.Data == nil || dr.Data.SvcOutList == nil {
		return nil, carrier.NewSourceError(Code, "detail", fmt.Errorf("missing svcOutList"))
	}

	events := make([]models.TrackingEvent, 0, len(dr.Data.SvcOutList))
	for _, it := range dr.Data.SvcOutList {
		if it.WorkDt == "" || it.WorkHms == "" {
			return nil, carrier.NewSourceError(Code, "detail", fmt.Errorf("event without workDt/workHms"))
		}
		t, err := time.ParseInLocation(timeLayout, it.WorkDt+" "+it.WorkHms, kst)
		if err != nil {
			return nil, carrier.NewSourceError(Code, "parse event time", err)
		}
		events = append(events, models.TrackingEvent{
			Time:     t,
			Status:   strings.TrimSpace(it.CrgStDnm),
			Location: strings.TrimSpace(it.BranNm),
			Detail:   strings.TrimSpace(it.CrgStDcdVal),
		})
	}
	carrier.SortEvents(events)

	p := models.NewParcel(Statuses, Code, wb.Data.WblNo, events)
	p.Sender = wb.Data.SndrNm
	p.Receiver = wb.Data.RcvrNm
	p.Item = wb.Data.RepGoodsNm
	return p, nil
}

func (c *Client) post(ctx context.Context, path, trackingNumber string, out any) error {
	form := url.Values{}
	form.Set("wblNo", trackingNumber)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return carrier.NewSourceError(Code, "new request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return carrier.NewSourceError(Code, "do request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return carrier.NewSourceError(Code, path, fmt.Errorf("http %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return carrier.NewSourceError(Code, path, errors.Wrap(err, "decode"))
	}
	return nil
}
