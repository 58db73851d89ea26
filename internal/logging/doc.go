// Package logging builds the structured logger shared by the coach client
// and the backend server. Level, format and output come from the logging
// section of the configuration.
package logging
