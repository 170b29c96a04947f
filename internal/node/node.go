// Package node serves one chain over HTTP and wires the bundled contracts
// onto it.
//
// Ownership boundary:
// - HTTP API: health, metrics, contract execute/query, channel inspection
// - contract deployment on first start and re-attachment on restart
package node

import "github.com/gin-gonic/gin"

type Node interface {
	NodeID() string
	Kind() string
	HTTPRouter() *gin.Engine
}
