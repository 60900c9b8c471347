// Package connectrpc holds the Connect interceptors used to serve
// authenticated RPCs: recovery, deadline, requestid, jwtauth, logging and
// errors. The interceptor package orders them around otelconnect and validate.
package connectrpc
