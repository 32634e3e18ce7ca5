package image_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/guojinxiang/ndvi-time-series/pkg/domain"
	"github.com/guojinxiang/ndvi-time-series/pkg/ee/image"
	"github.com/guojinxiang/ndvi-time-series/pkg/utils/try"
)

func serialized(t *testing.T, n interface {
	Serialize() ([]byte, error)
}) string {
	t.Helper()
	return string(try.To(n.Serialize()).OrFatal(t))
}

func functionNames(t *testing.T, payload string) []string {
	t.Helper()

	var compound struct {
		Scope [][2]json.RawMessage `json:"scope"`
	}
	if err := json.Unmarshal([]byte(payload), &compound); err != nil {
		t.Fatal(err)
	}

	names := []string{}
	for _, entry := range compound.Scope {
		var invocation struct {
			FunctionName string `json:"functionName"`
		}
		if err := json.Unmarshal(entry[1], &invocation); err != nil {
			t.Fatal(err)
		}
		if invocation.FunctionName != "" {
			names = append(names, invocation.FunctionName)
		}
	}
	return names
}

func count(names []string, name string) int {
	n := 0
	for _, got := range names {
		if got == name {
			n++
		}
	}
	return n
}

func pointOptions(reg domain.Regression) domain.Options {
	p := domain.Point{-122.26, 37.87}
	return domain.Options{
		Regression: reg,
		Source:     domain.AllSources,
		Start:      2010,
		End:        2012,
		CloudScore: 20,
		Point:      &p,
		ClientID:   "client-1",
	}
}

func TestCollection(t *testing.T) {
	t.Run("when all sources are selected, then every dataset is loaded and merged", func(t *testing.T) {
		opts := pointOptions(domain.Poly1)
		collection := try.To(image.Collection(opts, image.ByPoint)).OrFatal(t)

		payload := serialized(t, collection)
		for _, id := range []string{
			"LANDSAT/LT5_L1T_TOA", "LANDSAT/LE7_L1T_TOA", "LANDSAT/LC8_L1T_TOA",
		} {
			if !strings.Contains(payload, id) {
				t.Errorf("dataset %s is not loaded", id)
			}
		}

		names := functionNames(t, payload)
		if got := count(names, "ImageCollection.load"); got != 3 {
			t.Errorf("loads: got %d, expected 3", got)
		}
		if got := count(names, "Collection.merge"); got != 2 {
			t.Errorf("merges: got %d, expected 2", got)
		}
	})

	t.Run("when a single source is selected, then only its dataset is loaded", func(t *testing.T) {
		opts := pointOptions(domain.Poly1)
		opts.Source = domain.Landsat8
		collection := try.To(image.Collection(opts, image.ByPoint)).OrFatal(t)

		payload := serialized(t, collection)
		if !strings.Contains(payload, "LANDSAT/LC8_L1T_TOA") {
			t.Error("the Landsat 8 dataset is not loaded")
		}
		if strings.Contains(payload, "LT5") || strings.Contains(payload, "LE7") {
			t.Error("an unselected dataset is loaded")
		}
	})

	t.Run("when a cloud score threshold is set, then the cloud mask is applied", func(t *testing.T) {
		opts := pointOptions(domain.Poly1)
		opts.Source = domain.Landsat5
		collection := try.To(image.Collection(opts, image.ByPoint)).OrFatal(t)

		names := functionNames(t, serialized(t, collection))
		if count(names, "Algorithms.Landsat.simpleCloudScore") == 0 {
			t.Error("the cloud score algorithm is not invoked")
		}
	})

	t.Run("when the cloud score threshold is 100, then no mask is applied", func(t *testing.T) {
		opts := pointOptions(domain.Poly1)
		opts.Source = domain.Landsat5
		opts.CloudScore = 100
		collection := try.To(image.Collection(opts, image.ByPoint)).OrFatal(t)

		names := functionNames(t, serialized(t, collection))
		if count(names, "Algorithms.Landsat.simpleCloudScore") != 0 {
			t.Error("the cloud score algorithm is invoked")
		}
	})

	t.Run("when both geometries are given, then the merged collection is deduplicated", func(t *testing.T) {
		opts := pointOptions(domain.Poly1)
		opts.Source = domain.Landsat5
		opts.Region = domain.Region{
			{-122.3, 37.8}, {-122.2, 37.8}, {-122.2, 37.9}, {-122.3, 37.8},
		}
		collection := try.To(image.Collection(opts, image.ByPoint|image.ByRegion)).OrFatal(t)

		payload := serialized(t, collection)
		names := functionNames(t, payload)
		if count(names, "Collection.distinct") == 0 {
			t.Error("the merged collection is not deduplicated")
		}
		if !strings.Contains(payload, "LANDSAT_SCENE_ID") {
			t.Error("deduplication does not key on the scene id")
		}
	})

	t.Run("when no geometry is given, then it errors", func(t *testing.T) {
		opts := pointOptions(domain.Poly1)
		opts.Point = nil
		if _, err := image.Collection(opts, image.ByPoint); err == nil {
			t.Error("expected an error, got nil")
		}
	})
}

func TestRegression(t *testing.T) {
	t.Run("when the model is polynomial, then day-of-year powers drive the fit", func(t *testing.T) {
		opts := pointOptions(domain.Poly3)
		opts.Source = domain.Landsat5
		img := try.To(image.Regression(opts, image.ByPoint)).OrFatal(t)

		payload := serialized(t, img)
		names := functionNames(t, payload)
		if count(names, "Date.getRelative") == 0 {
			t.Error("the day of year is not computed")
		}
		if got := count(names, "Number.pow"); got != 2 {
			t.Errorf("powers: got %d, expected 2 (squared and cubed)", got)
		}
		if count(names, "Reducer.linearRegression") == 0 {
			t.Error("no linear regression reducer")
		}
		for _, label := range []string{"a0", "a1", "a2", "a3", "doy", "rmse"} {
			if !strings.Contains(payload, `"`+label+`"`) {
				t.Errorf("band label %s missing", label)
			}
		}
	})

	t.Run("when the model is the harmonic one, then seasonal terms drive the fit", func(t *testing.T) {
		opts := pointOptions(domain.ZhuWood)
		opts.Source = domain.Landsat5
		img := try.To(image.Regression(opts, image.ByPoint)).OrFatal(t)

		payload := serialized(t, img)
		names := functionNames(t, payload)
		if count(names, "Number.cos") == 0 || count(names, "Number.sin") == 0 {
			t.Error("the harmonic terms are not built")
		}
		if count(names, "Number.pow") != 0 {
			t.Error("a polynomial term leaked into the harmonic model")
		}
		if !strings.Contains(payload, `"sec"`) {
			t.Error("the coefficient suffix is not sec")
		}
	})

	t.Run("then sparsely observed pixels are masked out", func(t *testing.T) {
		opts := pointOptions(domain.Poly2)
		opts.Source = domain.Landsat5
		img := try.To(image.Regression(opts, image.ByPoint)).OrFatal(t)

		names := functionNames(t, serialized(t, img))
		if count(names, "Reducer.count") == 0 {
			t.Error("observations are not counted")
		}
		if count(names, "Image.gt") == 0 {
			t.Error("the count threshold is not applied")
		}
	})
}

func TestChartSeries(t *testing.T) {
	t.Run("then the series samples NDVI with timestamps at the point", func(t *testing.T) {
		opts := pointOptions(domain.Poly1)
		opts.Source = domain.Landsat5
		series := try.To(image.ChartSeries(opts, 30)).OrFatal(t)

		payload := serialized(t, series)
		names := functionNames(t, payload)
		for _, name := range []string{
			"Image.normalizedDifference",
			"Image.reduceRegions",
			"Collection.makeArray",
			"AggregateFeatureCollection.array",
		} {
			if count(names, name) == 0 {
				t.Errorf("%s is not invoked", name)
			}
		}
		if !strings.Contains(payload, "system:time_start") {
			t.Error("the timestamp property is not collected")
		}
	})
}

func TestClipped(t *testing.T) {
	t.Run("then the export image is clipped to the region", func(t *testing.T) {
		opts := pointOptions(domain.ZhuWood)
		opts.Point = nil
		opts.Region = domain.Region{
			{-122.3, 37.8}, {-122.2, 37.8}, {-122.2, 37.9}, {-122.3, 37.8},
		}
		img := try.To(image.Clipped(opts)).OrFatal(t)

		names := functionNames(t, serialized(t, img))
		if count(names, "Image.clip") == 0 {
			t.Error("the image is not clipped")
		}
		if count(names, "GeometryConstructors.Polygon") == 0 {
			t.Error("the clip geometry is not the polygon")
		}
	})
}
