// Package server hosts the Fiber HTTP service that carries method-channel
// calls to the attached plugin. Each channel call is a POST to
// /channels/<name> whose JSON body names the method and its arguments; the
// reply is either {"result": ...} or a structured channel error. Paths under
// /-/ are reserved for diagnostics and are registered by the routes package.
package server
