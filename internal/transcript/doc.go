// Package transcript holds the conversation log of a practice session.
//
// Turns are append-only and identified by stable IDs. Interaction state is
// attached as option sets, which can only be added to the most recent
// received turn and are disabled permanently once a turn resolves. Views
// render the log by subscribing to change events rather than by inspecting
// it.
package transcript
