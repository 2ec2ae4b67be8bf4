package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/wheelhouse-build/wheelhouse/pkg/catalog"
	"github.com/wheelhouse-build/wheelhouse/pkg/cluster"
	"github.com/wheelhouse-build/wheelhouse/pkg/forge"
	"github.com/wheelhouse-build/wheelhouse/pkg/git"
	"github.com/wheelhouse-build/wheelhouse/pkg/index"
	"github.com/wheelhouse-build/wheelhouse/pkg/reconcile"
	"github.com/wheelhouse-build/wheelhouse/pkg/release"
)

func main() {
	fs := pflag.NewFlagSet("default", pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "DESCRIPTION\n")
		fmt.Fprintf(os.Stderr, "  wheelhoused reconciles a recipe monorepo against its package index and build platform.\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		fs.PrintDefaults()
	}

	var (
		listenAddr     = fs.StringP("listen", "l", ":3040", "listen address for the HTTP API and metrics")
		repoPath       = fs.StringP("path", "p", ".", "path to the monorepo checkout to reconcile")
		sweepInterval  = fs.Duration("sweep-interval", 5*time.Minute, "period between reconciliation sweeps")
		sweepTimeout   = fs.Duration("sweep-timeout", 30*time.Minute, "time budget for one sweep (and fix pass)")
		preferRebuild  = fs.Bool("prefer-rebuild", false, "trigger rebuilds even when a build exists for the current commit")
		excludes       = fs.StringSlice("exclude", nil, "glob patterns of package names to skip")
		apply          = fs.Bool("apply", false, "apply decided fixes after each sweep, instead of observing only")
		batchSize      = fs.Int("batch-size", 20, "number of rebuilds to process per batch")
		releasePlan    = fs.String("release-plan", "wheelhouse-prod", "release plan to reference from created releases")
		indexURL       = fs.String("index-url", "https://pypi.wheelhouse.dev/simple", "base URL of the package index")
		indexRPS       = fs.Float64("index-rps", 5, "index request budget, requests per second")
		memcachedHosts = fs.StringSlice("memcached-hosts", nil, "memcached hosts for caching index lookups; empty disables the cache")
		cacheExpiry    = fs.Duration("cache-expiry", 20*time.Minute, "how long cached index lookups stay valid")
		clusterBin     = fs.String("cluster-cmd", "oc", "cluster CLI to invoke")
		namespace      = fs.StringP("namespace", "n", "", "cluster namespace holding the components")
		gateInterval   = fs.Duration("automerge-interval", 10*time.Minute, "period between merge gate passes")
		gateOwner      = fs.String("github-owner", "", "repository owner for the merge gate; empty disables it")
		gateRepo       = fs.String("github-repo", "", "repository name for the merge gate")
		gateAuthor     = fs.String("github-author", "wheelhouse-bot", "author whose pull requests the gate considers")
		gateSettle     = fs.Duration("github-settle-delay", 30*time.Second, "wait before reading a pull request's checks")
		dryRun         = fs.Bool("dry-run", false, "evaluate everything but mutate nothing")
	)
	fs.Parse(os.Args[1:])

	// Logger component.
	var logger log.Logger
	{
		logger = log.NewLogfmtLogger(os.Stderr)
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
	}

	cat := &catalog.Catalog{Root: *repoPath}

	// Index component.
	var indexClient index.Client
	{
		indexClient = index.NewRemote(*indexURL, *indexRPS, int(*indexRPS))
		if len(*memcachedHosts) > 0 {
			log.With(logger, "component", "index").Log("cache", "memcached", "hosts", fmt.Sprint(*memcachedHosts))
			indexClient = index.NewCache(indexClient, *memcachedHosts, *cacheExpiry)
		}
		indexClient = index.NewInstrumentedClient(indexClient)
	}

	clusterClient := cluster.CLI{Binary: *clusterBin, Namespace: *namespace}

	sweeper := &reconcile.Sweeper{
		Catalog:       cat,
		Index:         indexClient,
		Cluster:       clusterClient,
		Repo:          git.Repo{Dir: cat.Root},
		PreferRebuild: *preferRebuild,
		Exclude:       *excludes,
		Logger:        log.With(logger, "component", "reconcile"),
	}

	var fixer *release.Fixer
	if *apply {
		fixer = &release.Fixer{
			Catalog:     cat,
			Cluster:     clusterClient,
			ReleasePlan: *releasePlan,
			BatchSize:   *batchSize,
			DryRun:      *dryRun,
			Logger:      log.With(logger, "component", "release"),
		}
	}

	// Merge gate component; enabled only when a repository is named.
	var gate *forge.Gate
	{
		gateLogger := log.With(logger, "component", "forge")
		if *gateOwner != "" && *gateRepo != "" {
			token := os.Getenv("WHEELHOUSE_GITHUB_TOKEN")
			if token == "" {
				gateLogger.Log("err", "WHEELHOUSE_GITHUB_TOKEN is not set; merge gate disabled")
			} else {
				gate = &forge.Gate{
					Client:      forge.NewGitHub(context.Background(), *gateOwner, *gateRepo, token),
					Author:      *gateAuthor,
					SettleDelay: *gateSettle,
					DryRun:      *dryRun,
					Logger:      gateLogger,
				}
			}
		}
	}

	daemon := &Daemon{
		Sweeper:       sweeper,
		Fixer:         fixer,
		Gate:          gate,
		SweepInterval: *sweepInterval,
		GateInterval:  *gateInterval,
		SweepTimeout:  *sweepTimeout,
	}

	// HTTP component.
	router := mux.NewRouter()
	router.HandleFunc("/api/v1/report", daemon.handleReport).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	go func() {
		logger.Log("addr", *listenAddr)
		if err := http.ListenAndServe(*listenAddr, router); err != nil {
			logger.Log("err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan struct{})
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go daemon.Loop(stop, wg, log.With(logger, "component", "daemon"))

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	logger.Log("signal", sig.String())
	close(stop)
	wg.Wait()
	logger.Log("exiting", "true")
}
