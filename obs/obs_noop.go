//go:build nometrics

package obs

import (
	"context"
	"time"
)

func ObserveSuggest(string, time.Duration, string) {}

func RecordCacheLookup(bool) {}

func IncStaleDiscard() {}

func IncDebounceCollapse() {}

func SetCorpusSize(int) {}

func SetSessionsActive(int) {}

func InitTracer(string, float64) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}
