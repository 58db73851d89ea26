// Package feedback implements the correction dialog that follows each
// transcription.
//
// A result moves from Submitted through ResultShown to AwaitingConfidence,
// where the user rates it. "Perfect" ends the dialog. "Almost" fetches two
// suggested phrasings and lets the user pick one or reject both. "Wrong",
// or rejecting both suggestions, opens a free-text correction whose advice
// resolves the result. Every terminal stage disables the result's controls
// for good. All state is keyed by transcript turn IDs; the transcript
// session is the only output.
package feedback
