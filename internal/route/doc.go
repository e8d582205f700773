// Package route maps protected HTTP routes onto authorization actions
// and resources.
//
// The table is static and closed: every protected route has exactly one
// entry, every action is produced by exactly one route, and the server
// checks at startup that its registered routes and the table agree.
package route
