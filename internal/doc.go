// Package internal holds identifier and one-time-code generation shared by
// the session store and the reference upstream implementation. Nothing here
// is part of the public API.
package internal
