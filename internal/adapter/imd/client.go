package imd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/monsoonlab/imd-grid-etl/internal/domain"
)

// DefaultBaseURL is the IMD Pune gridded data portal.
const DefaultBaseURL = "https://www.imdpune.gov.in/cmpg/Griddata"

// portalPages maps archive variables to the portal form page that serves
// their yearwise files. The page name doubles as the form field carrying
// the requested year.
var portalPages = map[string]string{
	"rain": "RF25",
	"tmax": "MaxT",
	"tmin": "MinT",
}

// Client downloads yearwise files from the IMD portal. The portal takes a
// form POST naming the year and answers with the raw binary file.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a portal client. An empty baseURL selects the public
// IMD Pune portal.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Fetch requests the yearwise file for one (variable, year). The caller
// owns the returned body and must close it; the client timeout keeps
// covering the body while it is being drained.
func (c *Client) Fetch(ctx context.Context, v domain.Variable, year int) (io.ReadCloser, error) {
	page, ok := portalPages[v.Name]
	if !ok {
		return nil, fmt.Errorf("no portal page for variable %q", v.Name)
	}
	form := url.Values{page: {strconv.Itoa(year)}}
	u := fmt.Sprintf("%s/%s.html", c.baseURL, page)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	c.logger.Debug("fetching year file",
		"variable", v.Name,
		"year", year,
		"url", u)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("portal request %s %d: %w", v.Name, year, err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		resp.Body.Close()
		return nil, fmt.Errorf("portal error for %s %d: status %d: %s",
			v.Name, year, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return resp.Body, nil
}
