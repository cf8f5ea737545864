package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"dagledger/core"
)

// NewRouter builds the boundary API's chi router: endpoints mirroring the
// original cryptocurrency/smart-contracts microservices' routes, unified
// behind one mux now that both variants share a single engine.
func NewRouter(engine *core.Engine, logger *logrus.Entry) http.Handler {
	h := NewHandlers(engine, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Post("/transactions/", h.PostTransaction)
	r.Post("/wallets/generate/", h.PostWalletGenerate)
	r.Get("/wallets/balances/", h.GetWalletBalances)
	r.Get("/smart_contracts/", h.GetSmartContracts)
	r.Get("/smart_contracts/{address}", h.GetSmartContract)

	return r
}

// requestLogger is a chi middleware logging each request through logrus,
// replacing chi's default stdlib-log middleware.Logger with the project's
// structured logger.
func requestLogger(logger *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   ww.Status(),
				"duration": time.Since(start).String(),
			}).Info("request")
		})
	}
}
