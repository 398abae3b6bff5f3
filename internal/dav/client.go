// Package dav fetches event payloads from remote CalDAV servers.
package dav

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	appLog "github.com/Omihmed/CalDAV2iCal/internal/log"
	"github.com/Omihmed/CalDAV2iCal/internal/store"
)

// Sentinel errors for the fetch taxonomy. Anything else coming out of
// Fetch is a connection-level failure.
var (
	// ErrAuth means the server rejected the configured credentials.
	ErrAuth = errors.New("authentication rejected")
	// ErrCalendarNotFound means the calendar resource does not exist at
	// the expected location.
	ErrCalendarNotFound = errors.New("calendar not found")
)

// Result is the outcome of one successful fetch.
type Result struct {
	// CalendarPath is the calendar collection the events came from.
	CalendarPath string
	// Payloads holds one serialized VCALENDAR per event occurrence.
	// Empty when the calendar has no events in range; that is not an
	// error.
	Payloads [][]byte
}

// Fetcher retrieves event occurrences from CalDAV servers. It holds no
// per-server state and is safe for concurrent use.
type Fetcher struct {
	timeout time.Duration
}

// NewFetcher creates a Fetcher whose underlying HTTP requests are bounded
// by the given timeout. A hung remote server stalls only its own sync
// job, and only up to this bound.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{timeout: timeout}
}

// Fetch authenticates against the server, locates the calendar resource
// and returns every event within [windowStart, windowEnd]. Recurring
// events come back unexpanded; the materializer expands them per
// occurrence afterwards.
func (f *Fetcher) Fetch(ctx context.Context, srv store.Server, windowStart, windowEnd time.Time) (Result, error) {
	if srv.Endpoint == "" {
		return Result{}, errors.New("server endpoint is empty")
	}

	httpClient := &http.Client{Timeout: f.timeout}
	var hc webdav.HTTPClient = httpClient
	if srv.Username != "" {
		hc = webdav.HTTPClientWithBasicAuth(httpClient, srv.Username, srv.Password)
	}

	// Credential check up front so auth failures are reported as such
	// instead of as opaque query errors.
	status, err := probe(ctx, hc, srv.Endpoint)
	if err != nil {
		return Result{}, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return Result{}, fmt.Errorf("%w: server answered %d for %s", ErrAuth, status, RedactURL(srv.Endpoint))
	}

	client, err := caldav.NewClient(hc, srv.Endpoint)
	if err != nil {
		return Result{}, err
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return Result{}, err
	}
	appLog.Debug("resolved principal", "endpoint", RedactURL(srv.Endpoint), "principal", principal)

	calPath := srv.CalendarPath
	if calPath == "" {
		calPath, err = discoverCalendar(ctx, client, principal)
		if err != nil {
			return Result{}, err
		}
	} else {
		calURL, err := resolveRef(srv.Endpoint, calPath)
		if err != nil {
			return Result{}, err
		}
		status, err := probe(ctx, hc, calURL)
		if err != nil {
			return Result{}, err
		}
		if status == http.StatusNotFound {
			return Result{}, fmt.Errorf("%w: no resource at %s", ErrCalendarNotFound, calPath)
		}
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: "VCALENDAR",
			Comps: []caldav.CalendarCompRequest{{
				Name:     "VEVENT",
				AllProps: true,
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: windowStart.UTC(),
				End:   windowEnd.UTC(),
			}},
		},
	}

	objects, err := client.QueryCalendar(ctx, calPath, query)
	if err != nil {
		return Result{}, err
	}

	result := Result{CalendarPath: calPath}
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		var buf bytes.Buffer
		if err := ical.NewEncoder(&buf).Encode(obj.Data); err != nil {
			appLog.Error("failed to serialize fetched object", err, "path", obj.Path)
			continue
		}
		result.Payloads = append(result.Payloads, buf.Bytes())
	}

	appLog.Info("caldav fetch completed",
		"endpoint", RedactURL(srv.Endpoint),
		"calendar", calPath,
		"payload_count", len(result.Payloads),
	)
	return result, nil
}

// discoverCalendar returns the first calendar of the principal's home
// set, for servers configured without an explicit calendar path.
func discoverCalendar(ctx context.Context, client *caldav.Client, principal string) (string, error) {
	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", err
	}
	calendars, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", err
	}
	if len(calendars) == 0 {
		return "", fmt.Errorf("%w: calendar home set %q is empty", ErrCalendarNotFound, homeSet)
	}
	return calendars[0].Path, nil
}

// probe issues an authenticated OPTIONS request and reports the status
// code; transport-level failures come back as the connection error.
func probe(ctx context.Context, hc webdav.HTTPClient, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, rawURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// resolveRef resolves a calendar path against the server endpoint.
func resolveRef(endpoint, ref string) (string, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(rel).String(), nil
}

// RedactURL hides everything after the host of a URL so credentials and
// private paths never reach the logs.
func RedactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "caldav://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}
	return u[:j] + redactedSuffix
}
