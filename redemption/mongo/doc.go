// Package mongo provides the MongoDB client used for account metadata
// documents: lifecycle management with lazy reconnection, TLS setup, index
// bootstrap and the metadata repository backing the service layer.
package mongo
