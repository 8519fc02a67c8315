// Package service wires the remote session, the tool server and the
// diagnostics server into the body of a managed run, and journals runs.
package service
