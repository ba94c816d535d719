package export

// Dataset defines tabular export content. Rows are keyed by header name so
// renderers stay order-independent.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}
