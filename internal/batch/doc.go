// Package batch runs a list of media files through audio extraction and
// speech recognition, one isolated item at a time, and aggregates the
// outcomes into a single text report.
//
// A failing item never aborts the batch: it is recorded as an error entry
// and processing continues with the next item. Temporary waveforms produced
// by extraction are removed before the item's result is recorded, on every
// exit path.
package batch
