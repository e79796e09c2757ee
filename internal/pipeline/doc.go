// Package pipeline sequences one ROM build: resolve, extract, patch, repack,
// sign and clean up, with user hooks fired around every stage.
//
// A run is strictly sequential and the first failing stage ends it. The
// Report returned alongside the result records what each stage did and how
// long it took; observers receive the same information as it happens.
package pipeline
