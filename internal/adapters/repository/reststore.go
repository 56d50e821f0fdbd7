package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const driverSupabase = "supabase"

// RESTStore talks to the Supabase PostgREST endpoint of the participant table.
type RESTStore struct {
	endpoint   string
	key        string
	client     *http.Client
	milestones int
}

// NewRESTStore returns a store for the project at baseURL authenticated
// with the anon or service key.
func NewRESTStore(baseURL, key string, opts ...Option) (*RESTStore, error) {
	s := newSettings(opts)
	if !tableNameRe.MatchString(s.table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, s.table)
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid supabase url %q", baseURL)
	}
	client := s.client
	if client == nil {
		client = &http.Client{Timeout: s.timeout}
	}
	return &RESTStore{
		endpoint:   u.String() + "/rest/v1/" + s.table,
		key:        key,
		client:     client,
		milestones: s.milestones,
	}, nil
}

// Find implements Store.
func (s *RESTStore) Find(ctx context.Context, wallet string) (row Row, err error) {
	defer func(start time.Time) { observe(driverSupabase, "find", start, err) }(time.Now())

	q := url.Values{}
	q.Set(ColumnWallet, "eq."+wallet)
	q.Set("select", "*")
	rows, err := s.do(ctx, http.MethodGet, s.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return Row{}, err
	}
	if len(rows) == 0 {
		return Row{}, ErrNotFound
	}
	return rowFromMap(rows[0], s.milestones), nil
}

// Insert implements Store.
func (s *RESTStore) Insert(ctx context.Context, row Row) (err error) {
	defer func(start time.Time) { observe(driverSupabase, "insert", start, err) }(time.Now())

	_, err = s.do(ctx, http.MethodPost, s.endpoint, row.toMap())
	return err
}

// Update implements Store.
func (s *RESTStore) Update(ctx context.Context, wallet, column string, value float64) (err error) {
	defer func(start time.Time) { observe(driverSupabase, "update", start, err) }(time.Now())
	if _, err := ParseColumn(column, s.milestones); err != nil {
		return err
	}

	q := url.Values{}
	q.Set(ColumnWallet, "eq."+wallet)
	rows, err := s.do(ctx, http.MethodPatch, s.endpoint+"?"+q.Encode(), map[string]any{column: value})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

// Close implements Store.
func (s *RESTStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// do sends one request and decodes the representation PostgREST returns.
func (s *RESTStore) do(ctx context.Context, method, target string, body any) ([]map[string]any, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, method, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ErrConflict
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s returned %d: %s", ErrUnavailable, method, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUnavailable, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("%w: decode body: %w", ErrUnavailable, err)
	}
	return rows, nil
}
