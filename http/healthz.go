package http

import (
	"net/http"

	"weft/outbound-queue/log"
)

type healthzHandler struct {
	store Pinger
}

type Pinger interface {
	Ping() error
}

func NewHealthzHandler(store Pinger) http.Handler {
	return &healthzHandler{
		store: store,
	}
}

func (h healthzHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if h.checkStorage() {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
}

func (h healthzHandler) checkStorage() bool {
	if err := h.store.Ping(); err != nil {
		log.Logger.Debug("durable storage is not available or there is a problem with connectivity")
		return false
	}
	return true
}
