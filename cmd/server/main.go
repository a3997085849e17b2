package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"git.uuxo.net/uuxo/ffmpeg-gate/internal/auth"
	"git.uuxo.net/uuxo/ffmpeg-gate/internal/config"
	"git.uuxo.net/uuxo/ffmpeg-gate/internal/cpucheck"
	"git.uuxo.net/uuxo/ffmpeg-gate/internal/cpufeatures"
	"git.uuxo.net/uuxo/ffmpeg-gate/internal/ffmpeg"
	"git.uuxo.net/uuxo/ffmpeg-gate/internal/handlers"
	"git.uuxo.net/uuxo/ffmpeg-gate/internal/history"
	"git.uuxo.net/uuxo/ffmpeg-gate/internal/logging"
	"git.uuxo.net/uuxo/ffmpeg-gate/internal/metrics"
	"git.uuxo.net/uuxo/ffmpeg-gate/internal/registry"
	"git.uuxo.net/uuxo/ffmpeg-gate/internal/server"
	"git.uuxo.net/uuxo/ffmpeg-gate/internal/workers"
)

var log = logrus.New()

func setLoggers(l *logrus.Logger) {
	auth.SetLogger(l)
	config.SetLogger(l)
	cpufeatures.SetLogger(l)
	ffmpeg.SetLogger(l)
	handlers.SetLogger(l)
	history.SetLogger(l)
	metrics.SetLogger(l)
	registry.SetLogger(l)
	server.SetLogger(l)
	workers.SetLogger(l)
}

func main() {
	var configFile string
	var genConfig bool
	var genConfigPath string
	var validateOnly bool
	var showVersion bool
	var issueToken string

	flag.StringVar(&configFile, "config", "./config.toml", "Path to configuration file \"config.toml\".")
	flag.BoolVar(&genConfig, "genconfig", false, "Print minimal configuration example and exit.")
	flag.StringVar(&genConfigPath, "genconfig-path", "", "Write configuration to the given file and exit.")
	flag.BoolVar(&validateOnly, "validate-config", false, "Validate configuration and exit without starting server.")
	flag.BoolVar(&showVersion, "version", false, "Show version information and exit.")
	flag.StringVar(&issueToken, "issue-token", "", "Print a job token for the given subject and exit.")
	flag.Parse()

	if showVersion {
		fmt.Printf("ffmpeg-gate v%s\n", config.DefaultVersion)
		os.Exit(0)
	}

	if genConfig {
		fmt.Println(config.GenerateMinimalConfig())
		os.Exit(0)
	}
	if genConfigPath != "" {
		if err := config.CreateMinimalConfig(genConfigPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration written to %s\n", genConfigPath)
		os.Exit(0)
	}

	setLoggers(log)

	conf, err := config.LoadConfig(configFile)
	if err != nil {
		if configFile == "./config.toml" || configFile == "" {
			fmt.Println("No configuration file found. Creating a minimal config.toml...")
			if err := config.CreateMinimalConfig("config.toml"); err != nil {
				log.Fatalf("Failed to create minimal config: %v", err)
			}
			fmt.Println("Minimal config.toml created. Please review and modify as needed, then restart the server.")
			os.Exit(0)
		}
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Info("Configuration loaded successfully.")

	if err := config.ValidateConfig(conf); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	log.Info("Configuration validated successfully.")
	if validateOnly {
		os.Exit(0)
	}

	if issueToken != "" {
		token, err := auth.IssueToken(conf.Security.JWTSecret, issueToken, 24*time.Hour)
		if err != nil {
			log.Fatalf("Cannot issue token: %v", err)
		}
		fmt.Println(token)
		os.Exit(0)
	}

	logging.SetupLogging(conf, log)

	if err := logging.WritePIDFile(conf.Server.PIDFilePath, log); err != nil {
		log.Warnf("Error writing PID file: %v", err)
	}

	report := cpucheck.NewReport(cpufeatures.Detect(), conf.FFmpeg.ABI)
	logging.LogSystemInfo(log, conf.Build.Version, report)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.InitMetrics()
	metrics.RecordCheck(report.Family, report.ABI, report.Supported)
	metrics.StartSystemMetrics(15*time.Second, ctx.Done())

	layout := ffmpeg.Layout{ExecDir: conf.FFmpeg.ExecDir, AssetsRoot: conf.FFmpeg.AssetsRoot}
	if report.Supported && conf.FFmpeg.InstallOnStart {
		if err := ffmpeg.Install(layout, report.ABI); err != nil {
			log.Errorf("Failed to install ffmpeg binaries: %v", err)
		}
	} else if !report.Supported {
		log.Warnf("CPU not supported (%s); ffmpeg commands will be refused", report.Family)
	}

	var store *history.Store
	if conf.History.Enabled {
		store, err = history.Open(conf.History.DBPath)
		if err != nil {
			log.Fatalf("Failed to open run history: %v", err)
		}
	}

	opts := ffmpeg.Options{
		Layout:          layout,
		Supported:       report.Supported,
		Timeout:         config.Duration(conf.FFmpeg.Timeout, 0),
		ProgressTimeout: config.Duration(conf.FFmpeg.ProgressTimeout, 5*time.Second),
		Environment:     conf.FFmpeg.Environment,
	}
	if store != nil {
		opts.Recorder = store
	}
	runner := ffmpeg.NewRunner(opts)
	if report.Supported {
		vctx, vcancel := context.WithTimeout(ctx, 10*time.Second)
		if v, err := runner.Version(vctx); err == nil && v != "" {
			log.Infof("ffmpeg version %s", v)
		}
		vcancel()
	}

	redisURL := ""
	if conf.Redis.RedisEnabled {
		redisURL = conf.Redis.RedisURL
	}
	reg := registry.New(redisURL, config.Duration(conf.Redis.ReportTTL, registry.DefaultTTL))
	if err := reg.Publish(ctx, report); err != nil {
		log.Warnf("Failed to publish CPU report: %v", err)
	}

	queue := workers.NewJobQueue(&conf.Workers)
	queue.Start()

	api := &handlers.API{
		Report: func() *cpucheck.Report {
			return cpucheck.NewReport(cpufeatures.Detect(), conf.FFmpeg.ABI)
		},
		Runner:    runner,
		Queue:     queue,
		History:   store,
		Registry:  reg,
		JWTSecret: conf.Security.JWTSecret,
	}
	mux := http.NewServeMux()
	api.Register(mux)
	if conf.Server.MetricsEnabled {
		mux.Handle("GET "+conf.Server.MetricsPath, promhttp.Handler())
	}

	addr := server.ListenAddr(conf.Server.BindIP, conf.Server.ListenAddress)
	srv := server.New(addr, handlers.CORSWrapper(conf.Server.CORSOrigin, mux.ServeHTTP),
		config.Duration(conf.Timeouts.Read, 30*time.Second),
		config.Duration(conf.Timeouts.Write, 30*time.Second),
		config.Duration(conf.Timeouts.Idle, 120*time.Second))

	done := server.SetupGracefulShutdown(srv, config.Duration(conf.Timeouts.Shutdown, 30*time.Second), cancel, func() {
		// Stop first: it cancels the running job and drops queued ones.
		queue.Stop()
		runner.Kill()
		if store != nil {
			store.Close()
		}
		reg.Close()
		logging.RemovePIDFile(conf.Server.PIDFilePath, log)
	})

	verdict := "unsupported"
	if report.Supported {
		verdict = "supported"
	}
	server.PrintStartupBanner(conf.Build.Version, addr, fmt.Sprintf("%s (%s)", verdict, report.ABI))
	if err := server.Start(srv); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	<-done
}
