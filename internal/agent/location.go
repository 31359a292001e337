package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/alertx/alertx/internal/assets"
	"github.com/alertx/alertx/internal/gemini"
	"github.com/alertx/alertx/internal/overpass"
	"github.com/alertx/alertx/internal/pipeline"
)

// Fallback coordinates (Bangalore center) used when the model cannot
// estimate a location from the footage.
const (
	DefaultLat = 12.9716
	DefaultLon = 77.5946
)

// FacilityFinder is the facility-lookup capability injected into the
// location stage. overpass.Client implements it.
type FacilityFinder interface {
	Lookup(ctx context.Context, q overpass.Query) overpass.Result
	LookupGrouped(ctx context.Context, q overpass.Query) overpass.GroupedResult
}

var locationEstimateSchema *jsonschema.Schema

func init() {
	locationEstimateSchema = MustCompileSchema("location-estimate.schema.json", assets.LocationEstimateSchema)
}

// locationEstimate is the model's half of the location output.
type locationEstimate struct {
	UserLocation struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"user_location"`
	Confident     bool   `json:"confident"`
	EstimatedFrom string `json:"estimated_from"`
}

// locationData is the stage's merged output.
type locationData struct {
	UserLocation struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"user_location"`
	Confident            bool                           `json:"confident"`
	EstimatedFrom        string                         `json:"estimated_from,omitempty"`
	NearbyPlaces         []overpass.Facility            `json:"nearby_places"`
	FacilitiesByCategory map[string][]overpass.Facility `json:"facilities_by_category,omitempty"`
	LookupNote           string                         `json:"lookup_note,omitempty"`
}

// NewLocationAgent builds the location branch of the fan-out. The model
// turn only estimates coordinates; the stage itself then queries the
// facility finder and merges the results, so tool invocation is decided
// here, not by the model reply.
func NewLocationAgent(gen gemini.Generator, finder FacilityFinder, userText string, media *gemini.Blob) *Stage {
	return New(gen, Config{
		Name:        "LocationAgent",
		OutputKey:   LocationDataKey,
		Instruction: assets.LocationAgentPrompt,
		Task:        userText,
		Media:       media,
		Schema:      locationEstimateSchema,
		Post: func(ctx context.Context, _ *pipeline.SessionState, out json.RawMessage) (json.RawMessage, error) {
			return mergeFacilities(ctx, finder, out)
		},
	})
}

// mergeFacilities resolves the estimated coordinates and attaches nearby
// emergency facilities (capped flat list) plus the general grouped view.
func mergeFacilities(ctx context.Context, finder FacilityFinder, out json.RawMessage) (json.RawMessage, error) {
	var est locationEstimate
	if err := json.Unmarshal(out, &est); err != nil {
		return nil, fmt.Errorf("parse location estimate: %w", err)
	}

	lat, lon := est.UserLocation.Lat, est.UserLocation.Lon
	if !est.Confident || !validCoordinates(lat, lon) {
		log.Info().
			Float64("estimated_lat", lat).
			Float64("estimated_lon", lon).
			Bool("confident", est.Confident).
			Msg("Location estimate unusable, falling back to default coordinates")
		lat, lon = DefaultLat, DefaultLon
	}

	emergency := finder.Lookup(ctx, overpass.EmergencyQuery(lat, lon))
	grouped := finder.LookupGrouped(ctx, overpass.Query{Lat: lat, Lon: lon})

	data := locationData{
		Confident:     est.Confident,
		EstimatedFrom: est.EstimatedFrom,
		NearbyPlaces:  emergency.Facilities,
	}
	data.UserLocation.Lat = lat
	data.UserLocation.Lon = lon
	if grouped.Err == "" {
		data.FacilitiesByCategory = grouped.Groups
	}
	// Lookup failure is advisory: record the note, keep the coordinates.
	if emergency.Err != "" {
		data.LookupNote = emergency.Err
	}

	merged, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal location data: %w", err)
	}
	return merged, nil
}

func validCoordinates(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
