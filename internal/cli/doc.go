// Package cli turns the command line into an Invocation and runs it against
// the app. Usage errors exit with code 2, a differing diff with code 1 and a
// run with failed sections with code 3.
package cli
