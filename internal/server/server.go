package server

import "net/http"

// NewHandler assembles the relay's routes and middleware into one handler.
func NewHandler(handlers *AuthHandlers, allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/init", handlers.InitiateHandler)
	mux.HandleFunc("GET /auth/callback", handlers.CallbackHandler)
	mux.HandleFunc("GET /auth/status/{session}", handlers.StatusHandler)
	mux.Handle("GET /health", &HealthHandler{})

	return ChainMiddleware(mux,
		NewRequestLogMiddleware(),
		NewCORSMiddleware(allowedOrigins),
	)
}
