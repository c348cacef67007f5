package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/teawater/uksmd/pkg/facade"
	logger "github.com/teawater/uksmd/pkg/log"
	"github.com/teawater/uksmd/pkg/metrics"
	"github.com/teawater/uksmd/pkg/pidfile"
	"github.com/teawater/uksmd/pkg/uksm"
)

const defaultSocket = "/var/run/uksmd.sock"

var log = logger.Default()

// Config is the optional static YAML configuration file. Command-line
// flags win over values set here.
type Config struct {
	Socket      string `yaml:"socket"`
	MetricsAddr string `yaml:"metricsAddr"`
	PidFile     string `yaml:"pidFile"`
}

func exit(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, "uksmd: "+format+"\n", a...)
	os.Exit(1)
}

func loadConfigFile(filename string) Config {
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		exit("%s", err)
	}
	var config Config
	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		exit("error in %q: %s", filename, err)
	}
	return config
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func setupMetrics(addr string, gw *uksm.Gateway, sched *uksm.Scheduler) {
	collectors := map[string]prometheus.Collector{
		"gateway":    uksm.NewGatewayCollector(gw),
		"scheduler":  uksm.NewSchedulerCollector(sched),
		"mergeindex": uksm.NewMergeIndexCollector(sched.Index()),
	}
	for name, c := range collectors {
		c := c
		if err := metrics.RegisterCollector(name, func() (prometheus.Collector, error) {
			return c, nil
		}); err != nil {
			exit("registering %s collector: %s", name, err)
		}
	}
	g, err := metrics.NewMetricGatherer()
	if err != nil {
		exit("creating metric gatherer: %s", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("metrics server exited: %v", err)
		}
	}()
	log.Info("serving metrics at %s/metrics", addr)
}

func main() {
	rate := logger.Rate{Limit: logger.Every(1 * time.Minute)}
	logger.SetGrpcLogger("grpc", &rate)
	logger.SetStdLogger("stdlog")

	optSocket := flag.String("socket", "", "control socket path (default "+defaultSocket+")")
	optConfig := flag.String("config", "", "optional YAML configuration file")
	optMetrics := flag.String("metrics-addr", "", "serve prometheus metrics at this address (disabled if empty)")
	optPidFile := flag.String("pidfile", "", "pidfile path guarding against a second instance")
	flag.Parse()

	var cfg Config
	if *optConfig != "" {
		cfg = loadConfigFile(*optConfig)
	}
	socket := firstNonEmpty(*optSocket, cfg.Socket, defaultSocket)
	metricsAddr := firstNonEmpty(*optMetrics, cfg.MetricsAddr)

	if path := firstNonEmpty(*optPidFile, cfg.PidFile); path != "" {
		pidfile.SetPath(path)
	}
	if pid, err := pidfile.OwnerPid(); err == nil && pid > 0 && pid != os.Getpid() {
		exit("already running as pid %d", pid)
	}
	if err := pidfile.Remove(); err != nil {
		exit("removing stale pidfile: %s", err)
	}
	if err := pidfile.Write(); err != nil {
		exit("writing pidfile: %s", err)
	}
	defer pidfile.Remove()

	gw := uksm.NewGateway()
	if err := gw.Probe(); err != nil {
		exit("%s", err)
	}

	sched := uksm.NewScheduler(gw)
	if metricsAddr != "" {
		setupMetrics(metricsAddr, gw, sched)
	}

	srv := facade.NewServer(sched)
	if err := srv.Start(socket); err != nil {
		exit("%s", err)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	sig := <-signals
	log.Info("received %s, shutting down", sig)

	// Stop accepting control commands, let the in-flight worker (if any)
	// drain its queues, then unlink the socket and exit.
	srv.Stop()
	for !sched.Idle() {
		time.Sleep(10 * time.Millisecond)
	}
	if err := os.Remove(socket); err != nil && !os.IsNotExist(err) {
		log.Error("unlinking %s: %v", socket, err)
	}
}
