package api

import (
	"errors"
	"net/http"

	"hearthside/storefront/internal/catalog"
	"hearthside/storefront/internal/gate"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func (a *API) createProduct(_ http.ResponseWriter, r *http.Request) (any, error) {
	clean, err := a.decodeBody(r, productCreateSchema)
	if err != nil {
		return nil, err
	}
	req := bindProduct(clean)
	p, err := a.store.Create(r.Context(), req.product())
	if err != nil {
		return nil, err
	}
	return gate.Result{Status: http.StatusCreated, Data: p}, nil
}

func (a *API) updateProduct(_ http.ResponseWriter, r *http.Request) (any, error) {
	clean, err := a.decodeBody(r, productUpdateSchema)
	if err != nil {
		return nil, err
	}
	req := bindProduct(clean)
	p, err := a.store.Update(r.Context(), r.PathValue("id"), req.patch())
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, gate.NotFound("product not found")
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (a *API) deleteProduct(_ http.ResponseWriter, r *http.Request) (any, error) {
	err := a.store.Delete(r.Context(), r.PathValue("id"))
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, gate.NotFound("product not found")
	}
	if err != nil {
		return nil, err
	}
	return map[string]string{"deleted": r.PathValue("id")}, nil
}

// stats summarizes storefront counters from the prometheus registry so the
// admin dashboard does not need to scrape /metrics itself.
func (a *API) stats(_ http.ResponseWriter, _ *http.Request) (any, error) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		name := mf.GetName()
		if !statNames[name] {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			total += sampleValue(mf.GetType(), m)
		}
		out[name] = total
	}
	return out, nil
}

var statNames = map[string]bool{
	"storefront_gate_decision_total":   true,
	"storefront_auth_failures_total":   true,
	"storefront_rate_limit_hits_total": true,
	"storefront_sessions_issued_total": true,
	"storefront_catalog_cache_total":   true,
	"storefront_breaker_opens_total":   true,
}

func sampleValue(t dto.MetricType, m *dto.Metric) float64 {
	switch t {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	}
	return 0
}
