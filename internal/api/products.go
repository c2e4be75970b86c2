package api

import (
	"errors"
	"net/http"
	"strconv"

	"hearthside/storefront/internal/catalog"
	"hearthside/storefront/internal/gate"
)

type productPage struct {
	Items      []catalog.Product `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

func (a *API) listProducts(_ http.ResponseWriter, r *http.Request) (any, error) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	cursor := r.URL.Query().Get("cursor")
	items, next, err := a.store.List(r.Context(), limit, cursor)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []catalog.Product{}
	}
	return productPage{Items: items, NextCursor: next}, nil
}

func (a *API) getProduct(_ http.ResponseWriter, r *http.Request) (any, error) {
	p, err := a.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, gate.NotFound("product not found")
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (a *API) relatedProducts(_ http.ResponseWriter, r *http.Request) (any, error) {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := a.store.Related(r.Context(), r.PathValue("id"), n)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, gate.NotFound("product not found")
	}
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []catalog.Product{}
	}
	return map[string]any{"items": items}, nil
}

type deliveryResult struct {
	Covered    bool    `json:"covered"`
	DistanceKm float64 `json:"distance_km"`
	RadiusKm   float64 `json:"radius_km"`
}

func (a *API) deliveryCheck(_ http.ResponseWriter, r *http.Request) (any, error) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil {
		return nil, gate.Validation("lat and lng query parameters are required")
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, gate.Validation("lat or lng out of range")
	}
	covered, dist := a.area.Covers(lat, lng)
	return deliveryResult{Covered: covered, DistanceKm: round2(dist), RadiusKm: a.area.RadiusKm}, nil
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
