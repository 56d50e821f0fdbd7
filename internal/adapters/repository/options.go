package repository

import (
	"net/http"
	"time"
)

const (
	defaultTable      = "milestone_scores"
	defaultMilestones = 8
)

type settings struct {
	table      string
	milestones int
	client     *http.Client
	timeout    time.Duration
}

func newSettings(opts []Option) settings {
	s := settings{
		table:      defaultTable,
		milestones: defaultMilestones,
		timeout:    5 * time.Second,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option applies a configuration option to a store adapter.
type Option func(*settings)

// WithTable sets the participant table name.
func WithTable(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.table = name
		}
	}
}

// WithMilestones sets how many milestone columns a row carries.
func WithMilestones(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.milestones = n
		}
	}
}

// WithHTTPClient sets the client used by the REST adapter.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		if c != nil {
			s.client = c
		}
	}
}

// WithRequestTimeout bounds each REST round trip when the default client is used.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}
