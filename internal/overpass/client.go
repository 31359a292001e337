// Package overpass queries the OpenStreetMap Overpass API for facilities
// near a coordinate pair. Facility data is advisory: every transport or
// parse failure degrades to an empty result carrying the error message,
// never an error return, so a lookup outage cannot fail a pipeline run.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultRadiusMeters is used when a query does not set a radius.
	DefaultRadiusMeters = 5000

	// CapEmergency limits the emergency-only lookup variant.
	CapEmergency = 10

	// CapGeneral limits the general lookup variant.
	CapGeneral = 50

	defaultTimeout = 20 * time.Second
)

// Category groups a set of OSM amenity tags under one name. A returned
// record is classified into the first category whose tag list contains
// its amenity; records matching no category are discarded.
type Category struct {
	Name      string
	Amenities []string
}

// EmergencyCategories covers the facilities a responder needs first.
var EmergencyCategories = []Category{
	{Name: "hospital", Amenities: []string{"hospital", "clinic"}},
	{Name: "fire_station", Amenities: []string{"fire_station"}},
	{Name: "police", Amenities: []string{"police"}},
}

// DefaultCategories is the built-in general category table.
var DefaultCategories = []Category{
	{Name: "healthcare", Amenities: []string{"hospital", "clinic", "pharmacy", "ambulance_station"}},
	{Name: "emergency", Amenities: []string{"police", "fire_station"}},
	{Name: "finance", Amenities: []string{"bank", "atm"}},
	{Name: "education", Amenities: []string{"school", "college", "university"}},
	{Name: "transport", Amenities: []string{"fuel", "parking", "bus_station", "train_station"}},
	{Name: "shopping", Amenities: []string{"supermarket", "convenience", "restaurant", "fast_food", "cafe"}},
}

// Address holds the optional addr:* tags of a facility.
type Address struct {
	Street      string `json:"street,omitempty"`
	HouseNumber string `json:"housenumber,omitempty"`
	City        string `json:"city,omitempty"`
}

// Facility is one point of interest returned by a lookup. Immutable once
// returned.
type Facility struct {
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Address    Address `json:"address,omitempty"`
	DistanceKm float64 `json:"distance_km,omitempty"`
}

// Query describes one facility lookup.
type Query struct {
	Lat          float64
	Lon          float64
	RadiusMeters int
	// Categories defaults to DefaultCategories when empty.
	Categories []Category
	// Cap limits the flat result list. Zero means CapGeneral.
	Cap int
}

// EmergencyQuery builds the emergency-only lookup variant.
func EmergencyQuery(lat, lon float64) Query {
	return Query{Lat: lat, Lon: lon, Categories: EmergencyCategories, Cap: CapEmergency}
}

// Result is the outcome of a flat lookup. Err is set instead of raising:
// callers treat an errored lookup as "no facility data available".
type Result struct {
	Facilities []Facility `json:"facilities"`
	Err        string     `json:"error,omitempty"`
}

// GroupedResult is the outcome of a grouped lookup.
type GroupedResult struct {
	Groups map[string][]Facility `json:"groups"`
	Err    string                `json:"error,omitempty"`
}

// Client queries an Overpass interpreter endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates an Overpass client for the given interpreter URL.
// A zero timeout falls back to the default.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

// Lookup performs a facility lookup and returns a flat, capped list.
func (c *Client) Lookup(ctx context.Context, q Query) Result {
	facilities, err := c.query(ctx, q)
	if err != nil {
		log.Warn().Err(err).Float64("lat", q.Lat).Float64("lon", q.Lon).Msg("Facility lookup failed")
		return Result{Facilities: []Facility{}, Err: err.Error()}
	}

	limit := q.Cap
	if limit <= 0 {
		limit = CapGeneral
	}
	if len(facilities) > limit {
		facilities = facilities[:limit]
	}
	return Result{Facilities: facilities}
}

// LookupGrouped performs a facility lookup and returns results grouped by
// category name. The per-query cap applies to the total across groups.
func (c *Client) LookupGrouped(ctx context.Context, q Query) GroupedResult {
	res := c.Lookup(ctx, q)
	if res.Err != "" {
		return GroupedResult{Groups: map[string][]Facility{}, Err: res.Err}
	}
	groups := make(map[string][]Facility)
	for _, f := range res.Facilities {
		groups[f.Category] = append(groups[f.Category], f)
	}
	return GroupedResult{Groups: groups}
}

// --- Overpass wire format ---

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type   string            `json:"type"`
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Center *overpassCenter   `json:"center,omitempty"`
	Tags   map[string]string `json:"tags"`
}

type overpassCenter struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c *Client) query(ctx context.Context, q Query) ([]Facility, error) {
	if !isFinite(q.Lat) || !isFinite(q.Lon) {
		return nil, fmt.Errorf("coordinates must be finite, got lat=%v lon=%v", q.Lat, q.Lon)
	}

	radius := q.RadiusMeters
	if radius <= 0 {
		radius = DefaultRadiusMeters
	}
	categories := q.Categories
	if len(categories) == 0 {
		categories = DefaultCategories
	}

	query := buildQuery(q.Lat, q.Lon, radius, categories)

	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("overpass request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("overpass returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode overpass response: %w", err)
	}

	var facilities []Facility
	for _, el := range parsed.Elements {
		lat, lon := el.Lat, el.Lon
		if lat == 0 && lon == 0 && el.Center != nil {
			lat, lon = el.Center.Lat, el.Center.Lon
		}
		if lat == 0 && lon == 0 {
			continue
		}

		category, ok := classify(el.Tags["amenity"], categories)
		if !ok {
			continue
		}

		name := el.Tags["name"]
		if name == "" {
			name = "Unnamed Facility"
		}

		facilities = append(facilities, Facility{
			Name:     name,
			Category: category,
			Lat:      lat,
			Lon:      lon,
			Address: Address{
				Street:      el.Tags["addr:street"],
				HouseNumber: el.Tags["addr:housenumber"],
				City:        el.Tags["addr:city"],
			},
			DistanceKm: roundKm(haversineKm(q.Lat, q.Lon, lat, lon)),
		})
	}

	log.Debug().
		Int("elements", len(parsed.Elements)).
		Int("facilities", len(facilities)).
		Msg("Overpass lookup complete")

	return facilities, nil
}

// buildQuery renders the Overpass QL query covering nodes, ways and
// relations tagged with any amenity of the given categories.
func buildQuery(lat, lon float64, radius int, categories []Category) string {
	var tags []string
	for _, cat := range categories {
		tags = append(tags, cat.Amenities...)
	}
	filter := strings.Join(tags, "|")

	var sb strings.Builder
	sb.WriteString("[out:json][timeout:15];\n(\n")
	for _, kind := range []string{"node", "way", "relation"} {
		fmt.Fprintf(&sb, "  %s[\"amenity\"~\"%s\"](around:%d,%f,%f);\n", kind, filter, radius, lat, lon)
	}
	sb.WriteString(");\nout center;")
	return sb.String()
}

// classify returns the first category whose amenity list contains the tag.
func classify(amenity string, categories []Category) (string, bool) {
	for _, cat := range categories {
		for _, a := range cat.Amenities {
			if a == amenity {
				return cat.Name, true
			}
		}
	}
	return "", false
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

const earthRadiusKm = 6371.0

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

func roundKm(km float64) float64 {
	return math.Round(km*100) / 100
}
