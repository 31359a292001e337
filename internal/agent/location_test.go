package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alertx/alertx/internal/overpass"
	"github.com/alertx/alertx/internal/pipeline"
)

// fakeFinder records lookup queries and replays canned results.
type fakeFinder struct {
	queries []overpass.Query
	result  overpass.Result
	grouped overpass.GroupedResult
}

func (f *fakeFinder) Lookup(_ context.Context, q overpass.Query) overpass.Result {
	f.queries = append(f.queries, q)
	return f.result
}

func (f *fakeFinder) LookupGrouped(_ context.Context, q overpass.Query) overpass.GroupedResult {
	f.queries = append(f.queries, q)
	return f.grouped
}

func runLocationAgent(t *testing.T, estimate string, finder *fakeFinder) locationData {
	t.Helper()
	gen := &fakeGenerator{replies: []string{estimate}}
	stage := NewLocationAgent(gen, finder, "Analyze this video", nil)

	out, err := stage.Run(context.Background(), pipeline.NewSessionState())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	var data locationData
	if err := json.Unmarshal(out, &data); err != nil {
		t.Fatalf("parse merged output: %v", err)
	}
	return data
}

func TestLocationAgent_MergesFacilities(t *testing.T) {
	finder := &fakeFinder{
		result: overpass.Result{Facilities: []overpass.Facility{
			{Name: "CityCare Hospital", Category: "hospital", Lat: 13.01, Lon: 77.61},
		}},
		grouped: overpass.GroupedResult{Groups: map[string][]overpass.Facility{
			"healthcare": {{Name: "CityCare Hospital", Category: "healthcare", Lat: 13.01, Lon: 77.61}},
		}},
	}

	data := runLocationAgent(t,
		`{"user_location":{"lat":13.0,"lon":77.6},"confident":true,"estimated_from":"street sign"}`,
		finder)

	if data.UserLocation.Lat != 13.0 || data.UserLocation.Lon != 77.6 {
		t.Errorf("confident estimate should be kept, got %+v", data.UserLocation)
	}
	if len(data.NearbyPlaces) != 1 || data.NearbyPlaces[0].Name != "CityCare Hospital" {
		t.Errorf("emergency facilities not merged: %+v", data.NearbyPlaces)
	}
	if len(data.FacilitiesByCategory["healthcare"]) != 1 {
		t.Errorf("grouped facilities not merged: %+v", data.FacilitiesByCategory)
	}

	// First query is the emergency lookup at the estimated coordinates.
	if len(finder.queries) != 2 {
		t.Fatalf("expected 2 lookups, got %d", len(finder.queries))
	}
	if finder.queries[0].Lat != 13.0 || finder.queries[0].Cap != overpass.CapEmergency {
		t.Errorf("unexpected emergency query: %+v", finder.queries[0])
	}
}

func TestLocationAgent_FallsBackWhenNotConfident(t *testing.T) {
	finder := &fakeFinder{result: overpass.Result{Facilities: []overpass.Facility{}}}

	data := runLocationAgent(t,
		`{"user_location":{"lat":48.85,"lon":2.35},"confident":false,"estimated_from":"guess"}`,
		finder)

	if data.UserLocation.Lat != DefaultLat || data.UserLocation.Lon != DefaultLon {
		t.Errorf("expected fallback coordinates, got %+v", data.UserLocation)
	}
	if data.Confident {
		t.Error("confidence flag must survive the fallback")
	}
	if finder.queries[0].Lat != DefaultLat {
		t.Errorf("lookup should use the fallback coordinates, got %+v", finder.queries[0])
	}
}

func TestLocationAgent_FallsBackOnZeroCoordinates(t *testing.T) {
	finder := &fakeFinder{result: overpass.Result{Facilities: []overpass.Facility{}}}

	data := runLocationAgent(t,
		`{"user_location":{"lat":0,"lon":0},"confident":true}`,
		finder)

	if data.UserLocation.Lat != DefaultLat || data.UserLocation.Lon != DefaultLon {
		t.Errorf("null island should trigger the fallback, got %+v", data.UserLocation)
	}
}

func TestLocationAgent_LookupFailureIsAdvisory(t *testing.T) {
	finder := &fakeFinder{
		result:  overpass.Result{Facilities: []overpass.Facility{}, Err: "overpass returned 429"},
		grouped: overpass.GroupedResult{Groups: map[string][]overpass.Facility{}, Err: "overpass returned 429"},
	}

	data := runLocationAgent(t,
		`{"user_location":{"lat":13.0,"lon":77.6},"confident":true}`,
		finder)

	if data.LookupNote == "" {
		t.Error("lookup failure should surface as a note")
	}
	if data.NearbyPlaces == nil {
		t.Error("nearby places should be an empty list, not null")
	}
	if data.UserLocation.Lat != 13.0 {
		t.Errorf("coordinates must survive a lookup failure, got %+v", data.UserLocation)
	}
}
