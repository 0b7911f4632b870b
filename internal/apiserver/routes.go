package apiserver

// APIPrefix is the path prefix of every resource endpoint.
const APIPrefix = "/api/v1"

// registerRoutes wires every API endpoint to its handler.
func (s *Server) registerRoutes() {
	s.router.Use(s.instrument, s.decodeVars)

	// Health and metrics
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	api := s.router.PathPrefix(APIPrefix).Subrouter()

	// Fixed paths first so they are not taken for resource types.
	api.HandleFunc("/types", s.handleListTypes).Methods("GET")
	api.HandleFunc("/sets/{set}", s.handleListSet).Methods("GET")
	api.HandleFunc("/watch", s.handleWatch).Methods("GET")
	api.HandleFunc("/apply", s.handleApply).Methods("POST")

	// Resources
	api.HandleFunc("/{type}", s.handleList).Methods("GET")
	api.HandleFunc("/{type}", s.handleCreate).Methods("POST")
	api.HandleFunc("/{type}/by/{field}/{value}", s.handleLookup).Methods("GET")
	api.HandleFunc("/{type}/composite/{name}", s.handleResolveComposite).Methods("GET")
	api.HandleFunc("/{type}/{id}", s.handleGet).Methods("GET")
	api.HandleFunc("/{type}/{id}", s.handleUpdate).Methods("PUT")
	api.HandleFunc("/{type}/{id}", s.handleDelete).Methods("DELETE")
}
