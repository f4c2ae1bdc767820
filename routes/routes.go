// Package routes wires controllers into the gin router.
//
//   - api.go: the /v1 API and probe routes
//   - web.go: the service index and endpoint listing
package routes
