// Package image composes expression graphs for the NDVI regression
// pipelines. Everything here is pure graph building; evaluation happens on
// the compute service.
package image

import (
	"fmt"
	"math"

	"github.com/guojinxiang/ndvi-time-series/pkg/domain"
	"github.com/guojinxiang/ndvi-time-series/pkg/ee/expr"
)

// dataset ids of the top-of-atmosphere collections
var datasets = map[domain.Source]string{
	domain.Landsat5: "LANDSAT/LT5_L1T_TOA",
	domain.Landsat7: "LANDSAT/LE7_L1T_TOA",
	domain.Landsat8: "LANDSAT/LC8_L1T_TOA",
}

// source bands holding red and near-infrared reflectance, in that order
var sourceBands = map[domain.Source][]any{
	domain.Landsat5: {"B3", "B4"},
	domain.Landsat7: {"B3", "B4"},
	domain.Landsat8: {"B4", "B5"},
}

// seconds of one (non-leap) year, the period of the harmonic model
const yearSeconds = 365 * 24 * 60 * 60

// Geometry selects which of the user geometries filter the collection.
type Geometry int

const (
	ByPoint Geometry = 1 << iota
	ByRegion
)

func point(p domain.Point) *expr.Node {
	return expr.Call("GeometryConstructors.Point", expr.Args{
		"coordinates": []any{p.Lon(), p.Lat()},
	})
}

func polygon(r domain.Region) *expr.Node {
	ring := make([]any, len(r))
	for i, p := range r {
		ring[i] = []any{p.Lon(), p.Lat()}
	}
	return expr.Call("GeometryConstructors.Polygon", expr.Args{
		"coordinates": []any{ring},
	})
}

// filterBounds keeps the images intersecting the selected geometries.
// When both point and region are given, both collections are merged and
// deduplicated by scene id.
func filterBounds(collection *expr.Node, opts domain.Options, geom Geometry) (*expr.Node, error) {
	usePoint := geom&ByPoint != 0 && opts.Point != nil
	useRegion := geom&ByRegion != 0 && len(opts.Region) > 0

	switch {
	case usePoint && !useRegion:
		return expr.Call("Collection.filterBounds", expr.Args{
			"collection": collection,
			"geometry":   point(*opts.Point),
		}), nil
	case useRegion && !usePoint:
		return expr.Call("Collection.filterBounds", expr.Args{
			"collection": collection,
			"geometry":   polygon(opts.Region),
		}), nil
	case usePoint && useRegion:
		byPoint := expr.Call("Collection.filterBounds", expr.Args{
			"collection": collection,
			"geometry":   point(*opts.Point),
		})
		byRegion := expr.Call("Collection.filterBounds", expr.Args{
			"collection": collection,
			"geometry":   polygon(opts.Region),
		})
		merged := expr.Call("Collection.merge", expr.Args{
			"collection1": byPoint,
			"collection2": byRegion,
		})
		return expr.Call("Collection.distinct", expr.Args{
			"collection": merged,
			"properties": []any{"LANDSAT_SCENE_ID"},
		}), nil
	}
	return nil, fmt.Errorf("%w: no geometry to filter by", domain.ErrBadOption)
}

// cloudMask maps a simple-cloud-score threshold mask over the collection.
func cloudMask(collection *expr.Node, threshold int) *expr.Node {
	img := expr.Arg("img")
	cloud := expr.Call("Image.select", expr.Args{
		"input": expr.Call("Algorithms.Landsat.simpleCloudScore", expr.Args{
			"image": img,
		}),
		"bandSelectors": []any{"cloud"},
	})
	clear := expr.Call("Image.lt", expr.Args{
		"image1": cloud,
		"image2": expr.Call("Image.constant", expr.Args{"value": threshold}),
	})
	masked := expr.Call("Image.updateMask", expr.Args{
		"image": img,
		"mask":  clear,
	})

	return expr.Call("Collection.map", expr.Args{
		"collection":    collection,
		"baseAlgorithm": expr.Function([]string{"img"}, masked),
	})
}

// satellite builds the filtered, masked, RED/NIR-renamed collection of a
// single satellite.
func satellite(src domain.Source, opts domain.Options, geom Geometry) (*expr.Node, error) {
	collection := expr.Call("Collection.filterDate", expr.Args{
		"collection": expr.Call("ImageCollection.load", expr.Args{"id": datasets[src]}),
		"start":      fmt.Sprintf("%d-01-01", opts.Start),
		"end":        fmt.Sprintf("%d-12-31T23:59:59", opts.End),
	})

	collection, err := filterBounds(collection, opts, geom)
	if err != nil {
		return nil, err
	}

	if 0 < opts.CloudScore && opts.CloudScore < 100 {
		collection = cloudMask(collection, opts.CloudScore)
	}

	img := expr.Arg("img")
	renamed := expr.Call("Image.select", expr.Args{
		"input":         img,
		"bandSelectors": sourceBands[src],
		"newNames":      []any{"RED", "NIR"},
	})
	return expr.Call("Collection.map", expr.Args{
		"collection":    collection,
		"baseAlgorithm": expr.Function([]string{"img"}, renamed),
	}), nil
}

// Collection builds the full input collection for the given options:
// all selected satellites merged, each image carrying exactly the bands
// RED and NIR, cloud-masked when requested.
func Collection(opts domain.Options, geom Geometry) (*expr.Node, error) {
	sats := opts.Source.Satellites()

	collection, err := satellite(sats[0], opts, geom)
	if err != nil {
		return nil, err
	}
	for _, src := range sats[1:] {
		next, err := satellite(src, opts, geom)
		if err != nil {
			return nil, err
		}
		collection = expr.Call("Collection.merge", expr.Args{
			"collection1": collection,
			"collection2": next,
		})
	}
	return collection, nil
}

// Size counts the images of the whole input collection.
func Size(opts domain.Options, geom Geometry) (*expr.Node, error) {
	collection, err := Collection(opts, geom)
	if err != nil {
		return nil, err
	}
	return expr.Call("Collection.size", expr.Args{"collection": collection}), nil
}

// SatelliteSizes counts the images per satellite, before merging.
// The map key is the concrete satellite source.
func SatelliteSizes(opts domain.Options, geom Geometry) (map[domain.Source]*expr.Node, error) {
	sizes := map[domain.Source]*expr.Node{}
	for _, src := range opts.Source.Satellites() {
		collection, err := satellite(src, opts, geom)
		if err != nil {
			return nil, err
		}
		sizes[src] = expr.Call("Collection.size", expr.Args{"collection": collection})
	}
	return sizes, nil
}

// ndvi builds normalizedDifference(NIR, RED) of the mapped image.
func ndvi(img *expr.Node) *expr.Node {
	return expr.Call("Image.normalizedDifference", expr.Args{
		"input":     img,
		"bandNames": []any{"NIR", "RED"},
	})
}

func addBands(dst, src *expr.Node) *expr.Node {
	return expr.Call("Image.addBands", expr.Args{"dstImg": dst, "srcImg": src})
}

func constImage(value any) *expr.Node {
	return expr.Call("Image.constant", expr.Args{"value": value})
}

func emptyImage(img *expr.Node) *expr.Node {
	// select() with no bands: an image with the source's footprint and
	// metadata but no bands, ready for addBands
	return expr.Call("Image.select", expr.Args{
		"input":         img,
		"bandSelectors": []any{},
	})
}

// dayOfYear is the server-side day-of-year number of the image's timestamp.
func dayOfYear(img *expr.Node) *expr.Node {
	return expr.Call("Date.getRelative", expr.Args{
		"date":   expr.Call("Image.date", expr.Args{"image": img}),
		"unit":   "day",
		"inUnit": "year",
	})
}

// epochSeconds is the server-side timestamp of the image in whole seconds.
func epochSeconds(img *expr.Node) *expr.Node {
	return expr.Call("Number.floor", expr.Args{
		"input": expr.Call("Number.divide", expr.Args{
			"left": expr.Call("Date.millis", expr.Args{
				"date": expr.Call("Image.date", expr.Args{"image": img}),
			}),
			"right": 1000,
		}),
	})
}

// polyVariables maps each image onto a variable image for the polynomial
// regression: one constant band per power of the day-of-year, then NDVI as
// the response variable.
func polyVariables(collection *expr.Node, degree int) *expr.Node {
	img := expr.Arg("img")
	doy := dayOfYear(img)

	variables := emptyImage(img)
	variables = addBands(variables, constImage(1)) // a0 constant term
	for power := 1; power <= degree; power++ {
		x := doy
		if power > 1 {
			x = expr.Call("Number.pow", expr.Args{"left": doy, "right": power})
		}
		variables = addBands(variables, constImage(x))
	}
	variables = addBands(variables, ndvi(img))

	return expr.Call("Collection.map", expr.Args{
		"collection": collection,
		"baseAlgorithm": expr.Function([]string{"img"}, expr.Call(
			"Image.toFloat", expr.Args{"input": variables},
		)),
	})
}

// harmonicVariables maps each image onto the variable image of the
// Zhu & Woodcock model: constant, intra-annual cosine and sine, inter-annual
// trend over seconds since the start of the requested period, then NDVI.
func harmonicVariables(collection *expr.Node, startYear int) *expr.Node {
	img := expr.Arg("img")

	seconds := epochSeconds(img)
	start := expr.Call("Number.floor", expr.Args{
		"input": expr.Call("Number.divide", expr.Args{
			"left": expr.Call("Date.millis", expr.Args{
				"date": expr.Call("Date", expr.Args{
					"value": fmt.Sprintf("%d-01-01", startYear),
				}),
			}),
			"right": 1000,
		}),
	})
	offset := expr.Call("Number.subtract", expr.Args{"left": seconds, "right": start})

	omega := 2 * math.Pi / yearSeconds
	phase := expr.Call("Number.multiply", expr.Args{"left": omega, "right": offset})

	variables := emptyImage(img)
	variables = addBands(variables, constImage(1))
	variables = addBands(variables, constImage(expr.Call("Number.cos", expr.Args{"input": phase})))
	variables = addBands(variables, constImage(expr.Call("Number.sin", expr.Args{"input": phase})))
	variables = addBands(variables, constImage(offset))
	variables = addBands(variables, ndvi(img))

	return expr.Call("Collection.map", expr.Args{
		"collection": collection,
		"baseAlgorithm": expr.Function([]string{"img"}, expr.Call(
			"Image.toFloat", expr.Args{"input": variables},
		)),
	})
}

// countMask masks out pixels backed by fewer than 2 * predictors
// observations: regressions on almost-empty stacks fit anything.
func countMask(prepared *expr.Node, predictors int) *expr.Node {
	counted := expr.Call("ImageCollection.reduce", expr.Args{
		"collection": expr.Call("Collection.map", expr.Args{
			"collection": prepared,
			"baseAlgorithm": expr.Function([]string{"img"}, expr.Call(
				"Image.select", expr.Args{
					"input":         expr.Arg("img"),
					"bandSelectors": []any{"nd"},
				},
			)),
		}),
		"reducer": expr.Call("Reducer.count", expr.Args{}),
	})

	enough := expr.Call("Image.gt", expr.Args{
		"image1": counted,
		"image2": constImage(predictors*2 - 1),
	})

	img := expr.Arg("img")
	return expr.Call("Collection.map", expr.Args{
		"collection": prepared,
		"baseAlgorithm": expr.Function([]string{"img"}, expr.Call(
			"Image.updateMask", expr.Args{"image": img, "mask": enough},
		)),
	})
}

// Regression builds the image holding the fitted coefficients of the
// requested regression plus an "rmse" band with the root mean square error
// of the predicted NDVI.
func Regression(opts domain.Options, geom Geometry) (*expr.Node, error) {
	collection, err := Collection(opts, geom)
	if err != nil {
		return nil, err
	}

	var prepared *expr.Node
	if opts.Regression == domain.ZhuWood {
		prepared = harmonicVariables(collection, opts.Start)
	} else {
		prepared = polyVariables(collection, opts.Regression.Degree())
	}

	predictors := opts.Regression.Predictors()
	prepared = countMask(prepared, predictors)

	coefficients := expr.Call("ImageCollection.reduce", expr.Args{
		"collection": prepared,
		"reducer": expr.Call("Reducer.linearRegression", expr.Args{
			"numX": predictors,
			"numY": 1,
		}),
	})

	names := opts.Regression.CoefficientBands()
	labels := make([]any, 0, len(names)-1)
	for _, name := range names[:len(names)-1] {
		labels = append(labels, name[:2]) // a0, a1, ...
	}
	suffix := "doy"
	if opts.Regression == domain.ZhuWood {
		suffix = "sec"
	}

	coefficientsImage := expr.Call("Image.arrayFlatten", expr.Args{
		"image": expr.Call("Image.select", expr.Args{
			"input":         coefficients,
			"bandSelectors": []any{"coefficients"},
		}),
		"coordinateLabels": []any{labels, []any{suffix}},
	})

	rmse := expr.Call("Image.arrayFlatten", expr.Args{
		"image": expr.Call("Image.select", expr.Args{
			"input":         coefficients,
			"bandSelectors": []any{"residuals"},
		}),
		"coordinateLabels": []any{[]any{"rmse"}},
	})

	return addBands(coefficientsImage, rmse), nil
}

// Clipped is the regression image cut out along the user's polygon,
// as exported or downloaded.
func Clipped(opts domain.Options) (*expr.Node, error) {
	img, err := Regression(opts, ByPoint|ByRegion)
	if err != nil {
		return nil, err
	}
	return expr.Call("Image.clip", expr.Args{
		"input":    img,
		"geometry": polygon(opts.Region),
	}), nil
}

// Visualize wraps one band of the image for map display.
func Visualize(image *expr.Node, band string) *expr.Node {
	return expr.Call("Image.visualize", expr.Args{
		"image": expr.Call("Image.select", expr.Args{
			"input":         image,
			"bandSelectors": []any{band},
		}),
	})
}

// ChartSeries builds the value yielding the raw NDVI series at the point
// of interest: a list of [epochSeconds, ndvi] pairs, masked pixels dropped.
func ChartSeries(opts domain.Options, scale int) (*expr.Node, error) {
	collection, err := Collection(opts, ByPoint)
	if err != nil {
		return nil, err
	}

	// per image: a bandless image + timestamp band + NDVI band
	img := expr.Arg("img")
	values := addBands(
		addBands(
			emptyImage(img),
			expr.Call("Image.toFloat", expr.Args{
				"input": expr.Call("Image.metadata", expr.Args{
					"image":    img,
					"property": "system:time_start",
					"divisor":  1000.0,
				}),
			}),
		),
		ndvi(img),
	)
	withValues := expr.Call("Collection.map", expr.Args{
		"collection":    collection,
		"baseAlgorithm": expr.Function([]string{"img"}, values),
	})

	// sample each image at the point and pack [timestamp, ndvi] per feature
	sampled := expr.Call("Collection.map", expr.Args{
		"collection": withValues,
		"baseAlgorithm": expr.Function([]string{"img"}, expr.Call(
			"Collection.makeArray", expr.Args{
				"collection": expr.Call("Image.reduceRegions", expr.Args{
					"image":      expr.Arg("img"),
					"collection": point(*opts.Point),
					"reducer":    expr.Call("Reducer.mean", expr.Args{}),
					"scale":      scale,
				}),
				"properties": []any{"system:time_start", "nd"},
				"name":       "values",
			},
		)),
	})

	return expr.Call("AggregateFeatureCollection.array", expr.Args{
		"collection": expr.Call("Collection.flatten", expr.Args{"collection": sampled}),
		"property":   "values",
	}), nil
}

// PointCoefficients builds the value yielding the fitted coefficients at
// the point of interest, keyed by coefficient band name.
func PointCoefficients(opts domain.Options, scale int) (*expr.Node, error) {
	img, err := Regression(opts, ByPoint)
	if err != nil {
		return nil, err
	}
	return expr.Call("Image.reduceRegion", expr.Args{
		"image":    img,
		"reducer":  expr.Call("Reducer.mean", expr.Args{}),
		"geometry": point(*opts.Point),
		"scale":    scale,
	}), nil
}
