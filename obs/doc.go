// Package obs holds process-wide Prometheus metrics and tracer setup. Build
// with the nometrics tag to compile every recorder to a no-op.
package obs

// TracerName is the instrumentation scope for spans started by this module.
const TracerName = "github.com/trailhub/trailsuggest"
