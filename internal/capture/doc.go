// Package capture drives the start/stop lifecycle of a recording.
//
// A Capture opens a Device on Start and accumulates the fixed-size frames it
// delivers into an audio.SampleBuffer. Stop waits out an optional grace
// delay, halts frame acceptance, releases the device and encodes the buffer
// as a 16-bit mono WAV file. Two devices are provided: MicDevice reads the
// default input through miniaudio and FileDevice replays a WAV file at
// real-time cadence for headless use.
package capture
