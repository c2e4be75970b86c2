package api

import (
	"encoding/json"
	"net/http"

	"hearthside/storefront/internal/catalog"
	"hearthside/storefront/internal/gate"
	"hearthside/storefront/internal/sanitize"
	"hearthside/storefront/internal/validate"
)

// decodeBody reads the JSON body into a generic map, sanitizes it and runs
// it through the endpoint's schema. The returned map contains only sanitized
// values; binding into a typed request struct happens after this.
func (a *API) decodeBody(r *http.Request, schema validate.Schema) (map[string]any, error) {
	var raw map[string]any
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&raw); err != nil {
		return nil, gate.Validation("malformed json body")
	}
	clean := sanitize.Map(raw, a.cfg.Limits.MaxStringLen)
	if err := schema.Check(clean); err != nil {
		return nil, err
	}
	return clean, nil
}

var productCreateSchema = validate.Schema{
	Required: []string{"name", "category", "price_cents"},
	Fields: map[string]validate.Predicate{
		"name":            validate.IsString,
		"category":        validate.OneOf("fireplaces", "stoves", "inserts", "accessories"),
		"price_cents":     validate.Positive,
		"fuel_type":       validate.OneOf("wood", "gas", "electric", "pellet", ""),
		"tags":            validate.IsStringSlice,
		"heat_output_btu": validate.IsNumber,
		"description":     validate.IsString,
		"video_id":        validate.IsString,
		"active":          validate.IsBool,
		"slug":            validate.IsString,
	},
}

var productUpdateSchema = validate.Schema{
	Fields: productCreateSchema.Fields,
}

var loginSchema = validate.Schema{
	Required: []string{"email", "password"},
	Fields: map[string]validate.Predicate{
		"email":    validate.IsString,
		"password": validate.IsString,
	},
}

type productRequest struct {
	Name          string
	Slug          string
	Category      string
	FuelType      string
	Tags          []string
	PriceCents    int64
	HeatOutputBTU int
	Description   string
	VideoID       string
	Active        bool

	set map[string]bool
}

func bindProduct(m map[string]any) productRequest {
	req := productRequest{Active: true, set: make(map[string]bool, len(m))}
	for k, v := range m {
		req.set[k] = true
		switch k {
		case "name":
			req.Name, _ = v.(string)
		case "slug":
			req.Slug, _ = v.(string)
		case "category":
			req.Category, _ = v.(string)
		case "fuel_type":
			req.FuelType, _ = v.(string)
		case "tags":
			req.Tags = toStrings(v)
		case "price_cents":
			req.PriceCents = toInt64(v)
		case "heat_output_btu":
			req.HeatOutputBTU = int(toInt64(v))
		case "description":
			req.Description, _ = v.(string)
		case "video_id":
			req.VideoID, _ = v.(string)
		case "active":
			req.Active, _ = v.(bool)
		}
	}
	return req
}

func (r productRequest) product() catalog.Product {
	return catalog.Product{
		Name:          r.Name,
		Slug:          r.Slug,
		Category:      r.Category,
		FuelType:      r.FuelType,
		Tags:          r.Tags,
		PriceCents:    r.PriceCents,
		HeatOutputBTU: r.HeatOutputBTU,
		Description:   r.Description,
		VideoID:       r.VideoID,
		Active:        r.Active,
	}
}

// patch maps only the fields present in the request body so that a partial
// update leaves the rest untouched.
func (r productRequest) patch() catalog.Patch {
	var p catalog.Patch
	if r.set["name"] {
		p.Name = &r.Name
	}
	if r.set["slug"] {
		p.Slug = &r.Slug
	}
	if r.set["category"] {
		p.Category = &r.Category
	}
	if r.set["fuel_type"] {
		p.FuelType = &r.FuelType
	}
	if r.set["tags"] {
		p.Tags = &r.Tags
	}
	if r.set["price_cents"] {
		p.PriceCents = &r.PriceCents
	}
	if r.set["heat_output_btu"] {
		p.HeatOutputBTU = &r.HeatOutputBTU
	}
	if r.set["description"] {
		p.Description = &r.Description
	}
	if r.set["video_id"] {
		p.VideoID = &r.VideoID
	}
	if r.set["active"] {
		p.Active = &r.Active
	}
	return p
}

type loginRequest struct {
	Email    string
	Password string
}

func bindLogin(m map[string]any) loginRequest {
	var req loginRequest
	req.Email, _ = m["email"].(string)
	req.Password, _ = m["password"].(string)
	return req
}

func toStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}
