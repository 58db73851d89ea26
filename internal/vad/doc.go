// Package vad detects voice activity in 16-bit PCM recordings from the RMS
// energy of fixed windows. The backend uses it to answer silent uploads
// without calling the speech service.
package vad
