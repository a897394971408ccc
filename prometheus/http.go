package prometheus

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"weft/outbound-queue/config"
	h "weft/outbound-queue/http"
	"weft/outbound-queue/log"
)

func StartHttpServer(cfg *config.Config, store h.Pinger) {
	http.Handle("/metrics", promhttp.Handler())
	http.Handle("/healthz", h.NewHealthzHandler(store))

	err := http.ListenAndServe(fmt.Sprintf("127.0.0.1:%d", cfg.HTTPPort), nil)
	if err != nil {
		log.Logger.Fatalf("failed to start prometheus HTTP server: %s", err)
	}
}
