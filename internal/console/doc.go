// Package console is the terminal front end of the coach.
//
// A Renderer subscribes to the transcript and prints turns, option sets and
// status lines. A Controller reads input lines: Enter toggles recording, a
// number picks an option and other text answers an open correction control.
// Backend calls started from input run in the background, so the prompt
// keeps accepting lines while a request is in flight.
package console
