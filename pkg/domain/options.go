package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// Regression is the time-series model fitted on the remote compute service.
type Regression string

const (
	Poly1   Regression = "poly1"
	Poly2   Regression = "poly2"
	Poly3   Regression = "poly3"
	ZhuWood Regression = "zhuWood"
)

func AsRegression(s string) (Regression, error) {
	switch Regression(s) {
	case Poly1:
		return Poly1, nil
	case Poly2:
		return Poly2, nil
	case Poly3:
		return Poly3, nil
	case ZhuWood:
		return ZhuWood, nil
	}
	return "", fmt.Errorf(`%w: regression "%s" (should be one of poly1, poly2, poly3 or zhuWood)`, ErrBadOption, s)
}

// Predictors is the number of predictor variables of the regression,
// the constant term included.
func (r Regression) Predictors() int {
	switch r {
	case Poly1:
		return 2
	case Poly2:
		return 3
	case Poly3:
		return 4
	case ZhuWood:
		return 4
	}
	return 0
}

// Degree of the fitted polynomial. Zero for the harmonic model.
func (r Regression) Degree() int {
	switch r {
	case Poly1:
		return 1
	case Poly2:
		return 2
	case Poly3:
		return 3
	}
	return 0
}

// CoefficientBands are the band names of the regression image:
// one band per coefficient, suffixed with the domain of the predictor
// (day-of-year for polynomials, epoch seconds for the harmonic model),
// and "rmse" holding the root mean square error of the fit.
func (r Regression) CoefficientBands() []string {
	suffix := "doy"
	if r == ZhuWood {
		suffix = "sec"
	}

	bands := make([]string, 0, r.Predictors()+1)
	for i := 0; i < r.Predictors(); i++ {
		bands = append(bands, fmt.Sprintf("a%d_%s", i, suffix))
	}
	return append(bands, "rmse")
}

// Source selects which satellite collections feed the computation.
type Source string

const (
	Landsat5   Source = "land5"
	Landsat7   Source = "land7"
	Landsat8   Source = "land8"
	AllSources Source = "all"
)

func AsSource(s string) (Source, error) {
	switch Source(s) {
	case Landsat5:
		return Landsat5, nil
	case Landsat7:
		return Landsat7, nil
	case Landsat8:
		return Landsat8, nil
	case AllSources:
		return AllSources, nil
	}
	return "", fmt.Errorf(`%w: source "%s" (should be one of all, land5, land7 or land8)`, ErrBadOption, s)
}

// Satellites lists the concrete satellites behind this source.
func (s Source) Satellites() []Source {
	if s == AllSources {
		return []Source{Landsat5, Landsat7, Landsat8}
	}
	return []Source{s}
}

// Point is a [longitude, latitude] coordinate pair.
type Point [2]float64

func (p Point) Lon() float64 { return p[0] }
func (p Point) Lat() float64 { return p[1] }

// Region is a polygon as drawn by the user, vertex by vertex.
type Region []Point

var filenamePattern = regexp.MustCompile(`^[0-9A-Za-z_-]+$`)

// Options are the user-selected computation parameters, as sent by the
// browser with each /mapid, /chart, /download and /export request.
type Options struct {
	Regression Regression `json:"regression"`
	Source     Source     `json:"source"`

	// first and last year of images to use, both inclusive
	Start int `json:"start"`
	End   int `json:"end"`

	// pixels scoring above this cloud score threshold are masked out.
	// Masking is skipped unless 0 < CloudScore < 100.
	CloudScore int `json:"cloudscore"`

	Point  *Point `json:"point,omitempty"`
	Region Region `json:"region,omitempty"`

	Filename string `json:"filename"`
	ClientID string `json:"client_id"`
}

// Need describes what an operation requires beyond the always-checked
// basics.
type Need int

const (
	NeedPoint Need = 1 << iota
	NeedRegion
	NeedFilename
)

// Validate checks the option values.
//
// Args
//
// - need: requirements of the operation (charts need a point, exports
// and downloads need a region and a filename, map layers take whatever
// is there).
func (o Options) Validate(need Need) error {
	if _, err := AsRegression(string(o.Regression)); err != nil {
		return err
	}
	if _, err := AsSource(string(o.Source)); err != nil {
		return err
	}
	if o.End < o.Start {
		return fmt.Errorf("%w: end year %d is before start year %d", ErrBadOption, o.End, o.Start)
	}
	if o.CloudScore < 0 || 100 < o.CloudScore {
		return fmt.Errorf("%w: cloudscore %d (should be in 0..100)", ErrBadOption, o.CloudScore)
	}
	if need&NeedPoint != 0 && o.Point == nil {
		return fmt.Errorf("%w: no point selected", ErrBadOption)
	}
	if need&NeedRegion != 0 && len(o.Region) < 3 {
		return fmt.Errorf("%w: region needs at least 3 vertices", ErrBadOption)
	}
	if o.Point == nil && len(o.Region) == 0 {
		return fmt.Errorf("%w: no location selected", ErrBadOption)
	}
	if need&NeedFilename != 0 || o.Filename != "" {
		if !filenamePattern.MatchString(o.Filename) {
			return fmt.Errorf(`%w: filename "%s" (letters, digits, "-" and "_" only)`, ErrBadOption, o.Filename)
		}
	}
	if o.ClientID == "" {
		return fmt.Errorf("%w: client_id is missing", ErrBadOption)
	}
	return nil
}

func (o Options) String() string {
	b, err := json.Marshal(o)
	if err != nil {
		return fmt.Sprintf("(unprintable options: %s)", err)
	}
	return string(b)
}
