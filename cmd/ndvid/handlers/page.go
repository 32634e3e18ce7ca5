package handlers

import (
	"bytes"
	"net/http"
	"time"

	"github.com/google/uuid"
	apierr "github.com/guojinxiang/ndvi-time-series/pkg/api/types/errors"
	"github.com/guojinxiang/ndvi-time-series/pkg/serviceaccount"
	"github.com/labstack/echo/v4"
)

// PageHandler serves the map page. Every page load gets a fresh client id
// and a channel token scoped to it, so the browser can subscribe to its
// own progress messages.
func PageHandler(creds *serviceaccount.Credentials, databaseURL string) echo.HandlerFunc {
	return func(c echo.Context) error {
		clientID := uuid.NewString()

		token, err := creds.CustomToken(clientID, time.Now())
		if err != nil {
			return apierr.InternalServerError(err)
		}

		buf := bytes.Buffer{}
		if err := templates.ExecuteTemplate(&buf, "index.html", map[string]string{
			"ClientID":     clientID,
			"ChannelToken": token,
			"DatabaseURL":  databaseURL,
		}); err != nil {
			return apierr.InternalServerError(err)
		}
		return c.HTML(http.StatusOK, buf.String())
	}
}
