package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	apierr "github.com/guojinxiang/ndvi-time-series/pkg/api/types/errors"
	"github.com/guojinxiang/ndvi-time-series/pkg/domain"
	"github.com/guojinxiang/ndvi-time-series/pkg/ee"
	"github.com/guojinxiang/ndvi-time-series/pkg/ee/image"
	"github.com/guojinxiang/ndvi-time-series/pkg/notify"
	"github.com/guojinxiang/ndvi-time-series/pkg/utils/slices"
	"github.com/labstack/echo/v4"
)

type MapIDRequest struct {
	domain.Options
	Band string `json:"band"`
}

type MapIDResponse struct {
	MapID   string `json:"mapid"`
	Token   string `json:"token"`
	TileURL string `json:"tile_url"`
}

var satelliteLabels = map[domain.Source]string{
	domain.Landsat5: "Landsat 5",
	domain.Landsat7: "Landsat 7",
	domain.Landsat8: "Landsat 8",
}

// geometryOf derives the bounds filter from what the user has drawn.
func geometryOf(opts domain.Options) image.Geometry {
	geom := image.Geometry(0)
	if opts.Point != nil {
		geom |= image.ByPoint
	}
	if len(opts.Region) >= 3 {
		geom |= image.ByRegion
	}
	return geom
}

// countImages evaluates the per-satellite collection sizes.
func countImages(
	ctx context.Context, client ee.Client, opts domain.Options, geom image.Geometry,
) (int, []string, error) {
	sizes, err := image.SatelliteSizes(opts, geom)
	if err != nil {
		return 0, nil, err
	}

	total := 0
	breakdown := []string{}
	for _, src := range opts.Source.Satellites() {
		data, err := client.Value(ctx, sizes[src])
		if err != nil {
			return 0, nil, err
		}
		n, err := ee.DecodeInt(data)
		if err != nil {
			return 0, nil, err
		}
		total += n
		breakdown = append(breakdown, fmt.Sprintf("%s: %d", satelliteLabels[src], n))
	}
	return total, breakdown, nil
}

// MapIDHandler registers the regression image of the selected options as
// a map layer and reports how many images feed it.
func MapIDHandler(client ee.Client, tileBaseURL string, messenger notify.Messenger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		req := MapIDRequest{}
		if err := c.Bind(&req); err != nil {
			return apierr.BadRequest("broken request body", err)
		}
		if err := req.Options.Validate(0); err != nil {
			return apierr.BadRequest(err.Error(), err)
		}

		geom := geometryOf(req.Options)

		total, breakdown, err := countImages(ctx, client, req.Options, geom)
		if err != nil {
			return apierr.InternalServerError(err)
		}
		if total == 0 {
			messenger.Send(ctx, req.ClientID, domain.Message{
				ID:    "collection",
				Style: domain.StyleDanger,
				Line1: "No images match these options.",
			})
			return apierr.BadRequest("no images match these options", domain.ErrEmptyCollection)
		}

		info := domain.Message{
			ID:    "collection",
			Style: domain.StyleInfo,
			Line1: fmt.Sprintf("Found %d images.", total),
		}
		if req.Source == domain.AllSources {
			info.Line2 = strings.Join(breakdown, ", ")
		}
		messenger.Send(ctx, req.ClientID, info)

		band := req.Band
		bands := req.Regression.CoefficientBands()
		if band == "" {
			band = bands[0]
		}
		if !slices.Contains(bands, band) {
			return apierr.BadRequest(
				fmt.Sprintf("band %q is not produced by %s", band, req.Regression),
				domain.ErrBadOption,
			)
		}

		img, err := image.Regression(req.Options, geom)
		if err != nil {
			return apierr.InternalServerError(err)
		}

		mapID, err := client.MapID(ctx, image.Visualize(img, band), ee.VisParams{
			Band: band, Min: -1, Max: 1,
		})
		if err != nil {
			return apierr.InternalServerError(err)
		}

		return c.JSON(http.StatusOK, MapIDResponse{
			MapID:   mapID.MapID,
			Token:   mapID.Token,
			TileURL: mapID.TileURLTemplate(tileBaseURL),
		})
	}
}
