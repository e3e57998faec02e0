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
	"time"
)

// Serves static assets with the two headers that enable cross-origin
// isolation (SharedArrayBuffer in wasm clients).
func main() {
	var (
		addr = flag.String("addr", ":8090", "http listen address")
		dir  = flag.String("dir", "./static", "directory to serve")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[fileserver] ", log.LstdFlags|log.Lmicroseconds)

	files := http.FileServer(http.Dir(*dir))
	handler := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		rw.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
		files.ServeHTTP(rw, r)
	})

	httpSrv := &http.Server{Addr: *addr, Handler: handler}

	go func() {
		logger.Printf("serving %s on %s", *dir, *addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
}
