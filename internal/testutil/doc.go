// Package testutil provides fixtures shared by the tests of the packages
// built on top of pipeline: a counting modifier, data constructors and a
// bounded wait for futures.
package testutil
