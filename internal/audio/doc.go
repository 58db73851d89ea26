// Package audio holds captured sample frames and serializes them.
// It implements the frame accumulator used during capture and the canonical
// 16-bit mono WAV encoding submitted for transcription.
package audio
