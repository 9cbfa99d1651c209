package epost

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BearBump/ParcelBox/internal/integrations/carrier"
	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/PuerkitoBio/goquery"
)

const (
	Code           = "epost"
	DefaultBaseURL = "https://service.epost.go.kr"

	tracePath  = "/trace.RetrieveDomRigiTraceList.comm"
	timeLayout = "2006.01.02 15:04"
)

var Aliases = []string{"우체국", "우체국택배", "koreapost"}

var kst = time.FixedZone("KST", 9*60*60)

// notFoundMarkers are the notices the trace page shows for an unknown number.
// Compared with whitespace removed.
var notFoundMarkers = []string{
	"조회결과가없습니다",
	"조회된결과가없습니다",
	"배송정보를찾을수없습니다",
}

var Statuses = models.StatusTable{
	"접수":   models.DeliveryStatusInProgress,
	"발송":   models.DeliveryStatusInProgress,
	"배달준비": models.DeliveryStatusInProgress,
	"배달완료": models.DeliveryStatusCompleted,
}

// Client scrapes the public ePost domestic trace page.
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

func (c *Client) Fetch(ctx context.Context, trackingNumber string) (*models.Parcel, error) {
	u, err := url.Parse(c.baseURL + tracePath)
	if err != nil {
		return nil, carrier.NewSourceError(Code, "parse base url", err)
	}
	q := u.Query()
	q.Set("sid1", trackingNumber)
	q.Set("displayHeader", "N")
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
		return nil, carrier.NewSourceError(Code, "trace", fmt.Errorf("http %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, carrier.NewSourceError(Code, "parse html", err)
	}
	return parse(doc, trackingNumber)
}

func parse(doc *goquery.Document, trackingNumber string) (*models.Parcel, error) {
	summary := doc.Find("table.table_col > tbody > tr").First()
	number := text(summary.Find("th:nth-child(1)"))
	if summary.Length() == 0 || number == "" {
		if hasNotFoundMarker(doc) {
			return nil, carrier.NewSourceError(Code, "summary", carrier.ErrNotFound)
		}
		// техработы, капча или сменилась вёрстка
		return nil, carrier.NewSourceError(Code, "summary", fmt.Errorf("summary row missing"))
	}

	var (
		events   []models.TrackingEvent
		parseErr error
	)
	doc.Find("#processTable > tbody > tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		date := text(row.Find("td:nth-child(1)"))
		clock := text(row.Find("td:nth-child(2)"))
		if date == "" || clock == "" {
			parseErr = fmt.Errorf("event row without date/time")
			return false
		}
		t, err := time.ParseInLocation(timeLayout, date+" "+clock, kst)
		if err != nil {
			parseErr = err
			return false
		}
		events = append(events, models.TrackingEvent{
			Time:     t,
			Status:   text(row.Find("td:nth-child(4) > span:nth-child(1)")),
			Location: text(row.Find("td:nth-child(3) > a")),
			Detail:   text(row.Find("td:nth-child(4) > span:nth-child(2)")),
		})
		return true
	})
	if parseErr != nil {
		return nil, carrier.NewSourceError(Code, "parse events", parseErr)
	}
	carrier.SortEvents(events)

	p := models.NewParcel(Statuses, Code, number, events)
	p.Sender = text(summary.Find("td:nth-child(2)"))
	p.Receiver = text(summary.Find("td:nth-child(3)"))
	p.Item = text(summary.Find("td:nth-child(5)"))
	if p.TrackingNumber == "" {
		p.TrackingNumber = trackingNumber
	}
	return p, nil
}

func hasNotFoundMarker(doc *goquery.Document) bool {
	body := strings.Join(strings.Fields(doc.Find("body").Text()), "")
	for _, m := range notFoundMarkers {
		if strings.Contains(body, m) {
			return true
		}
	}
	return false
}

// text collapses whitespace; the page pads cells with tabs and newlines.
func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.First().Text()), " ")
}
