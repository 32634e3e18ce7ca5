package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/guojinxiang/ndvi-time-series/cmd/ndvid/handlers"
	apierr "github.com/guojinxiang/ndvi-time-series/pkg/api/types/errors"
	configs "github.com/guojinxiang/ndvi-time-series/pkg/configs/server"
	kpool "github.com/guojinxiang/ndvi-time-series/pkg/conn/db/postgres/pool"
	"github.com/guojinxiang/ndvi-time-series/pkg/conn/db/postgres/schema"
	chartpg "github.com/guojinxiang/ndvi-time-series/pkg/domain/chart/db/postgres"
	"github.com/guojinxiang/ndvi-time-series/pkg/domain/cleanup"
	exportpg "github.com/guojinxiang/ndvi-time-series/pkg/domain/export/db/postgres"
	"github.com/guojinxiang/ndvi-time-series/pkg/drive"
	"github.com/guojinxiang/ndvi-time-series/pkg/echoutil"
	"github.com/guojinxiang/ndvi-time-series/pkg/ee"
	"github.com/guojinxiang/ndvi-time-series/pkg/notify"
	"github.com/guojinxiang/ndvi-time-series/pkg/serviceaccount"
	"github.com/guojinxiang/ndvi-time-series/pkg/utils/filewatch"
)

var scopes = []string{
	"https://www.googleapis.com/auth/earthengine",
	"https://www.googleapis.com/auth/drive",
	"https://www.googleapis.com/auth/firebase.database",
	"https://www.googleapis.com/auth/userinfo.email",
}

func main() {
	configPath := flag.String("config-path", "", "server config path")
	loglevel := flag.String("loglevel", "info", "log level. debug|info|warn|error|off")
	staticDir := flag.String("static-dir", "./static", "directory of static web assets")
	pcert := flag.String("cert", "", "certification file for TLS")
	pkey := flag.String("certkey", "", "key of certification file for TLS")
	flag.Parse()

	conf, err := configs.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("can not read configuration: %s", err)
	}

	e := echo.New()
	echoutil.SetLevel(e, *loglevel)
	e.HTTPErrorHandler = errorHandler(e)
	e.Use(echoutil.LogHandlerFunc)

	// restart (via the process supervisor) when the config changes
	ctx, cancel, err := filewatch.UntilModifyContext(context.Background(), *configPath)
	if err != nil {
		log.Fatalf("can not watch configuration: %s", err)
	}
	defer cancel()
	context.AfterFunc(ctx, func() {
		log.Println("config file is updated. quit to restart server.")
		graceful, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := e.Shutdown(graceful); err != nil {
			log.Printf("error on shutdown by config update: %s", err)
		}
	})

	creds, err := serviceaccount.FromFile(conf.CredentialsFile)
	if err != nil {
		log.Fatalf("can not load credentials: %s", err)
	}
	authed := serviceaccount.HTTPClient(
		serviceaccount.NewTokenSource(creds, scopes), http.DefaultClient,
	)

	pgpool, err := pgxpool.Connect(ctx, conf.DBURI)
	if err != nil {
		log.Fatalf("can not connect to database: %s", err)
	}
	defer pgpool.Close()
	pool := kpool.Wrap(pgpool)
	if err := schema.Apply(ctx, pool); err != nil {
		log.Fatalf("can not apply schema: %s", err)
	}

	eeClient := ee.NewClient(conf.EarthEngine.APIBaseURL, authed)
	driveSvc := drive.New(authed)
	messenger := notify.NewFirebase(conf.Firebase.DatabaseURL, authed)

	exports := exportpg.New(pool)
	chartJobs := chartpg.NewJobs(pool)
	charts := chartpg.NewCharts(pool)

	sweeper := cleanup.Sweeper{
		Drive:     driveSvc,
		Charts:    charts,
		Exports:   exports,
		Retention: conf.Export.Retention.AsDuration(),
	}

	e.GET("/", handlers.PageHandler(creds, conf.Firebase.DatabaseURL))
	e.POST("/mapid", handlers.MapIDHandler(eeClient, conf.EarthEngine.TileBaseURL, messenger))
	e.POST("/chart", handlers.ChartRequestHandler(chartJobs, messenger))
	e.GET("/chart", handlers.ChartPageHandler(charts))
	e.POST("/download", handlers.DownloadHandler(eeClient, conf.Export.Scale, messenger))
	e.POST("/export", handlers.ExportHandler(exports, messenger))
	e.GET("/clean", handlers.CleanHandler(sweeper, exports, driveSvc, messenger, conf.AdminKey))
	e.POST("/clean", handlers.UnloadHandler(exports))
	e.Static("/static", *staticDir)

	log.Println("registered routes:")
	for _, r := range e.Routes() {
		log.Println(r.Method, r.Path)
	}

	cert, key := *pcert, *pkey
	if cert != "" && key != "" {
		e.Logger.Fatal(e.StartTLS(":"+conf.Port, cert, key))
	} else {
		e.Logger.Fatal(e.Start(":" + conf.Port))
	}
}

// errorHandler renders every error as {"error": {...}}.
func errorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		e.Logger.Error(err)
		if c.Response().Committed {
			return
		}

		httperr := new(echo.HTTPError)
		if !errors.As(err, &httperr) {
			httperr = echo.NewHTTPError(http.StatusInternalServerError)
		}

		body := apierr.ErrorResponse{}
		switch msg := httperr.Message.(type) {
		case apierr.ErrorMessage:
			body.Message = msg
		case string:
			body.Message = apierr.ErrorMessage{Reason: msg}
		default:
			body.Message = apierr.ErrorMessage{Reason: http.StatusText(httperr.Code)}
		}

		if c.Request().Method == http.MethodHead {
			if err := c.NoContent(httperr.Code); err != nil {
				e.Logger.Error(err)
			}
			return
		}
		if err := c.JSON(httperr.Code, body); err != nil {
			e.Logger.Error(err)
		}
	}
}
