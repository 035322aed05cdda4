// Package batch decomposes many spectra concurrently.
//
// A Runner dispatches every spectrum to a bounded worker pool and gathers
// the results into a Result whose columns are aligned with the input
// order. A spectrum whose decomposition fails, whether by invalid input,
// quality-control rejection or a panic, yields a row of nulls; the batch
// continues and the failures are logged once when it completes. Only
// cancellation of the context aborts a batch.
package batch
