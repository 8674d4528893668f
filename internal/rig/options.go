package rig

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
)

type Option func(*options)

type options struct {
	fs       afero.Fs
	registry *prometheus.Registry
}

// WithFs replaces the filesystem used for protocols, live files and runs.
func WithFs(fs afero.Fs) Option {
	return func(o *options) {
		o.fs = fs
	}
}

// WithRegistry registers the rig metrics with reg instead of a fresh
// registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}
