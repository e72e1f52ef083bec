// Package api serves the plugin index over HTTP.
//
// # Endpoints
//
//	GET  /api/v1/libraries                 every indexed library
//	GET  /api/v1/libraries/metadata?path=  one library by path
//	GET  /api/v1/plugins/{id}              libraries providing a plugin ID
//	POST /api/v1/index[?wait=true]         rescan the search paths
//	GET  /health, /health/live, /health/ready
//	GET  /metrics
//
// Errors are returned as {"error": "..."}. A rescan started while another is
// running gets 409.
//
// # Usage Example
//
//	handler := api.NewHandler(api.HandlerConfig{
//		Store:    store,
//		Indexer:  indexer,
//		Roots:    discovery.SearchPaths,
//		Logger:   logger,
//		Metrics:  metrics,
//		Registry: registry,
//		Health:   health,
//	})
//	http.ListenAndServe(":8080", handler)
package api
