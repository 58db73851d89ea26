// Package backend provides the services behind the HTTP API: speech
// recognition, alternative phrasing suggestions and pronunciation advice.
package backend
