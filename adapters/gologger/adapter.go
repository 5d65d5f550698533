// Package gologger resolves namespaced loggers for engine components and
// bridges them onto the go-job logging contracts so queue workers share the
// engine's logging pipeline.
package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

const namespace = "rwa-engine"

// ResolveComponent resolves the logger for an engine component under the
// engine namespace, preferring an explicit provider, then a logger, then the
// nop fallback.
func ResolveComponent(component string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	name := namespace
	if c := strings.TrimSpace(component); c != "" {
		name = namespace + "." + c
	}
	return glog.Resolve(name, provider, logger)
}

// JobProvider maps a glog provider onto the go-job logger provider contract.
func JobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// JobLogger maps a glog logger onto the go-job logger contract.
func JobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveJobComponent resolves a component logger and returns it together
// with its go-job equivalents for handing to queue components.
func ResolveJobComponent(
	component string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := ResolveComponent(component, provider, logger)
	return resolvedProvider, resolvedLogger, JobProvider(resolvedProvider), JobLogger(resolvedLogger)
}
