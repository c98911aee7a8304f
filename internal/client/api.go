package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/voltpower/volt/internal/plan"
	"github.com/voltpower/volt/internal/power"
	"github.com/voltpower/volt/internal/protocol"
)

// API calls the HTTP endpoints of a running volt instance.
type API struct {
	base string
	http *http.Client
}

// NewAPI returns an API client for the status server at addr (host:port).
func NewAPI(addr string) *API {
	u := url.URL{Scheme: "http", Host: addr}
	return &API{
		base: u.String(),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// Health reports whether a volt instance is answering at the address.
func (a *API) Health(ctx context.Context) error {
	var body map[string]string
	if err := a.do(ctx, http.MethodGet, "/health", nil, &body); err != nil {
		return err
	}
	if body["status"] != "ok" {
		return fmt.Errorf("unexpected health status %q", body["status"])
	}
	return nil
}

// Status fetches the current snapshot.
func (a *API) Status(ctx context.Context) (protocol.Status, error) {
	var st protocol.Status
	err := a.do(ctx, http.MethodGet, "/status", nil, &st)
	return st, err
}

// SetPreference asks the running instance to bind id to state.
func (a *API) SetPreference(ctx context.Context, state power.State, id plan.ID) (protocol.Status, error) {
	var st protocol.Status
	err := a.do(ctx, http.MethodPut, "/preferences/"+state.Key(), map[string]string{"plan": id.String()}, &st)
	return st, err
}

// Activate asks the running instance to switch to id now.
func (a *API) Activate(ctx context.Context, id plan.ID) (protocol.Status, error) {
	var st protocol.Status
	err := a.do(ctx, http.MethodPost, "/activate", map[string]string{"plan": id.String()}, &st)
	return st, err
}

func (a *API) do(ctx context.Context, method, path string, in, out any) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, &body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e protocol.ErrorPayload
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, e.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
