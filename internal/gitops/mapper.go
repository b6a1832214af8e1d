// Package gitops talks to git hosting providers for the publishing flow
// and routes mapped endpoints to live data or their fallback payloads.
package gitops

import (
	"errors"
	"fmt"
	"sync/atomic"

	"pkt.systems/pslog"

	"github.com/inframind/inframind/schema"
)

// Endpoint names one logical GitOps operation routed through the mapper.
type Endpoint string

const (
	// EndpointReposGet serves one connected repository.
	EndpointReposGet Endpoint = "repos.get"
	// EndpointReposBranches serves a repository's branches.
	EndpointReposBranches Endpoint = "repos.branches"
	// EndpointPullsCreate opens a pull request for an approved plan.
	EndpointPullsCreate Endpoint = "pulls.create"
	// EndpointPullsList serves a repository's pull requests.
	EndpointPullsList Endpoint = "pulls.list"
	// EndpointTemplatesCatalog serves the IaC template registry.
	EndpointTemplatesCatalog Endpoint = "templates.catalog"
	// EndpointPlansEstimate serves a plan's cost estimate.
	EndpointPlansEstimate Endpoint = "plans.estimate"
)

// Endpoints lists every mapped endpoint.
func Endpoints() []Endpoint {
	return []Endpoint{
		EndpointReposGet,
		EndpointReposBranches,
		EndpointPullsCreate,
		EndpointPullsList,
		EndpointTemplatesCatalog,
		EndpointPlansEstimate,
	}
}

// Mapper decides whether a mapped endpoint serves live data or its static
// fallback payload. Forced mode covers demos and planned provider outages;
// otherwise only a provider-unavailable failure falls back.
type Mapper struct {
	forced atomic.Bool
	log    pslog.Logger
}

// NewMapper validates that every endpoint has a fallback payload and
// returns the mapper. A missing payload is a tree bug and fails startup.
func NewMapper(forceFallback bool, logger pslog.Logger) (*Mapper, error) {
	for _, ep := range Endpoints() {
		if Fallback(ep) == nil {
			return nil, fmt.Errorf("endpoint %s has no fallback payload", ep)
		}
	}
	m := &Mapper{log: logger}
	m.forced.Store(forceFallback)
	return m, nil
}

// SetForced flips forced fallback mode at runtime.
func (m *Mapper) SetForced(on bool) {
	old := m.forced.Swap(on)
	if old != on && m.log != nil {
		m.log.Info("gitops fallback mode changed", "forced", on)
	}
}

// Forced reports whether every mapped endpoint serves its fallback payload.
func (m *Mapper) Forced() bool {
	return m.forced.Load()
}

// ShouldFallback reports whether a live failure should be replaced with the
// endpoint's static payload. Only provider outages qualify; domain errors
// like not-found pass through.
func (m *Mapper) ShouldFallback(err error) bool {
	return errors.Is(err, schema.ErrProviderUnavailable)
}

// Payload returns a fresh copy of the endpoint's fallback payload.
func (m *Mapper) Payload(ep Endpoint) any {
	payload := Fallback(ep)
	if payload != nil && m.log != nil {
		m.log.Debug("gitops fallback served", "endpoint", ep)
	}
	return payload
}
