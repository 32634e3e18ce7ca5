package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/guojinxiang/ndvi-time-series/cmd/loops/recurring"
	cfg_hook "github.com/guojinxiang/ndvi-time-series/pkg/configs/hook"
	configs "github.com/guojinxiang/ndvi-time-series/pkg/configs/server"
	kpool "github.com/guojinxiang/ndvi-time-series/pkg/conn/db/postgres/pool"
	"github.com/guojinxiang/ndvi-time-series/pkg/conn/db/postgres/schema"
	chartpg "github.com/guojinxiang/ndvi-time-series/pkg/domain/chart/db/postgres"
	exportpg "github.com/guojinxiang/ndvi-time-series/pkg/domain/export/db/postgres"
	"github.com/guojinxiang/ndvi-time-series/pkg/drive"
	"github.com/guojinxiang/ndvi-time-series/pkg/ee"
	"github.com/guojinxiang/ndvi-time-series/pkg/notify"
	"github.com/guojinxiang/ndvi-time-series/pkg/serviceaccount"
	"github.com/guojinxiang/ndvi-time-series/pkg/utils/args"
	"github.com/guojinxiang/ndvi-time-series/pkg/utils/filewatch"
	"github.com/guojinxiang/ndvi-time-series/pkg/utils/try"
)

var scopes = []string{
	"https://www.googleapis.com/auth/earthengine",
	"https://www.googleapis.com/auth/drive",
	"https://www.googleapis.com/auth/firebase.database",
	"https://www.googleapis.com/auth/userinfo.email",
}

func main() {
	logger := log.Default()
	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, os.Kill, syscall.SIGTERM,
	)
	defer cancel()

	pconfig := flag.String(
		"config", os.Getenv("NDVI_CONFIG"), "path to config file",
	)
	phooks := flag.String(
		"hooks", os.Getenv("NDVI_HOOK_CONFIG"), "path to hook config file",
	)
	loopType := args.Parser(AsLoopType)
	flag.Var(loopType, "type", "one of loop type: exporting|charting|cleaning")
	policy := args.Parser(recurring.ParsePolicy)
	flag.Var(
		policy, "policy",
		`loop policy (syntax: forever[:COOLDOWN]|backlog).`+
			` "forever[:COOLDOWN]" = run forever until error. When backlog is over, `+
			`wait COOLDOWN (optional duration. default: 0) as interval.`+
			` "backlog" = run until error or backlog is over.`,
	)
	flag.Parse()

	if !loopType.IsSet() || !policy.IsSet() {
		flag.Usage()
		os.Exit(2)
	}

	{
		// watch config & hooks; restart (by the supervisor) on change
		targets := []string{*pconfig}
		if *phooks != "" {
			targets = append(targets, *phooks)
		}
		wctx, cancel, err := filewatch.UntilModifyContext(ctx, targets...)
		if err != nil {
			logger.Fatal(err)
		}
		defer cancel()
		ctx = wctx
	}

	conf := try.To(configs.LoadConfig(*pconfig)).OrFatal(logger)

	creds := try.To(serviceaccount.FromFile(conf.CredentialsFile)).OrFatal(logger)
	authed := serviceaccount.HTTPClient(
		serviceaccount.NewTokenSource(creds, scopes), http.DefaultClient,
	)

	pgpool := try.To(pgxpool.Connect(ctx, conf.DBURI)).OrFatal(logger)
	defer pgpool.Close()
	pool := kpool.Wrap(pgpool)
	if err := schema.Apply(ctx, pool); err != nil {
		logger.Fatal(err)
	}

	hooks := cfg_hook.Config{}
	if hookPath := *phooks; hookPath != "" {
		hooks = try.To(cfg_hook.Load(hookPath)).OrFatal(logger)
	}

	logger.Printf(
		`start loop "%s" /w policy "%s"`,
		loopType.Value().String(), policy.Value().String(),
	)

	err := StartLoop(
		ctx, logger, conf,
		Stores{
			Exports:   exportpg.New(pool),
			ChartJobs: chartpg.NewJobs(pool),
			Charts:    chartpg.NewCharts(pool),
		},
		Services{
			EE:        ee.NewClient(conf.EarthEngine.APIBaseURL, authed),
			Drive:     drive.New(authed),
			Messenger: notify.NewFirebase(conf.Firebase.DatabaseURL, authed),
		},
		LoopManifest{
			Type:   loopType.Value(),
			Policy: recurring.UntilError(policy.Value()),
			Hooks:  hooks,
		},
	)

	if err == nil {
		return
	} else if errors.Is(err, context.Canceled) {
		logger.Fatal(err, "(loop context is cancelled by:", context.Cause(ctx), ")")
	}

	if ctx.Err() != nil {
		logger.Fatal(err)
	}
	logger.Fatal(err)
}
