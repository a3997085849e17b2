// Package server provides HTTP server setup and lifecycle management.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// New creates a configured HTTP server.
func New(addr string, handler http.Handler, readTimeout, writeTimeout, idleTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:           addr,
		Handler:        handler,
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		IdleTimeout:    idleTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}

// ListenAddr joins the bind IP and the listen address.  A bare port such
// as "8080" becomes ":8080".
func ListenAddr(bindIP, listen string) string {
	if listen == "" {
		listen = "8080"
	}
	if !strings.Contains(listen, ":") {
		listen = ":" + listen
	}
	if bindIP != "" && listen[0] == ':' {
		return bindIP + listen
	}
	return listen
}

// Start starts the HTTP server and blocks until shutdown.  A graceful
// shutdown is not reported as an error.
func Start(server *http.Server) error {
	log.Infof("Starting ffmpeg-gate on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// SetupGracefulShutdown shuts srv down on SIGINT/SIGTERM, then calls
// cancel and cleanupFn.  It returns a channel closed once shutdown is done.
func SetupGracefulShutdown(srv *http.Server, timeout time.Duration, cancel context.CancelFunc, cleanupFn func()) <-chan struct{} {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		defer close(done)
		sig := <-sigChan
		log.Infof("Received signal %v, initiating graceful shutdown...", sig)

		ctx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("Server shutdown error: %v", err)
		} else {
			log.Info("Server shutdown completed")
		}

		cancel()
		if cleanupFn != nil {
			cleanupFn()
		}
	}()
	return done
}

// PrintStartupBanner prints the server startup banner.
func PrintStartupBanner(version, listenAddr, verdict string) {
	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║         ffmpeg-gate                          ║")
	fmt.Printf("║         Version: %-28s║\n", version)
	fmt.Printf("║         Listen:  %-28s║\n", listenAddr)
	fmt.Printf("║         CPU:     %-28s║\n", verdict)
	fmt.Println("╚══════════════════════════════════════════════╝")
}
