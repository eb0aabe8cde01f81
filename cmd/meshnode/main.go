// Command meshnode runs a standalone mesh node: it generates a fresh
// keypair on every start, registers the tcp and inmemory transports, optionally serves
// the statusapi HTTP surface, optionally watches a directory of accepted
// signer keys, and logs every Message it receives.
package main

import (
	"encoding/base64"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/mesher/internal/debug"
	"github.com/kenneth/mesher/keywatch"
	"github.com/kenneth/mesher/mesher"
	"github.com/kenneth/mesher/meshcrypto"
	"github.com/kenneth/mesher/metrics"
	"github.com/kenneth/mesher/statusapi"
	"github.com/kenneth/mesher/transports/inmemory"
	"github.com/kenneth/mesher/transports/tcp"
)

// startSystemMetricsCollector periodically samples the running goroutine
// count into nodeMetrics for as long as the process lives.
func startSystemMetricsCollector(nodeMetrics *metrics.Metrics) {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for range ticker.C {
			nodeMetrics.UpdateGoroutineCount()
		}
	}()
}

func main() {
	var (
		listenAddr = flag.String("listen", "tcp:127.0.0.1:9443", "scheme-prefixed address to listen on")
		statusAddr = flag.String("status-addr", "127.0.0.1:9090", "address to serve /healthz, /readyz, /metrics on, empty to disable")
		signerDir  = flag.String("signer-dir", "", "directory of accepted Ed25519 signer public keys to watch, empty to disable")
		pollEvery  = flag.Duration("poll-interval", time.Second, "how often to poll transports for received messages")
		verbose    = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		debug.SetEnabled(true)
	}
	if debug.Enabled() {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	pub, sec, err := meshcrypto.GenerateEncryptionKeypair()
	if err != nil {
		log.Fatalf("generating node keypair: %v", err)
	}
	logger.WithField("public_key", base64.StdEncoding.EncodeToString(pub[:])).Info("node keypair generated")

	nodeMetrics := metrics.NewMetrics()
	nodeMetrics.SetHardwareAccelerationStatus("aes", metrics.HasAESHardwareSupport())
	startSystemMetricsCollector(nodeMetrics)

	m := mesher.NewUnsigned([]meshcrypto.SecretKey{sec}, mesher.Options{
		Logger:  logger,
		Metrics: nodeMetrics,
	})

	if err := m.AddTransport("tcp", tcp.Factory); err != nil {
		log.Fatalf("registering tcp transport: %v", err)
	}
	if err := m.AddTransport("mem", inmemory.Factory); err != nil {
		log.Fatalf("registering inmemory transport: %v", err)
	}
	if err := m.ListenOn(*listenAddr); err != nil {
		log.Fatalf("listening on %s: %v", *listenAddr, err)
	}

	if *signerDir != "" {
		w, err := keywatch.New(*signerDir, m, logger)
		if err != nil {
			log.Fatalf("starting key watcher on %s: %v", *signerDir, err)
		}
		w.Run()
		defer w.Close()
	}

	if *statusAddr != "" {
		r := mux.NewRouter()
		statusapi.NewHandler(m, logger, nodeMetrics).RegisterRoutes(r)
		srv := &http.Server{Addr: *statusAddr, Handler: r}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("status server stopped")
			}
		}()
		logger.WithField("addr", *statusAddr).Info("status api listening")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			logger.Info("shutting down")
			return
		case <-ticker.C:
			msgs, err := m.Receive()
			if err != nil {
				logger.WithError(err).Warn("receive failed")
				continue
			}
			for _, msg := range msgs {
				logger.WithField("bytes", len(msg.Contents)).Info("message received")
			}
		}
	}
}
