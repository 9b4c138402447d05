// Package crawler holds the domain types shared by the availability watcher
// and the two primitives every session relies on: the GridExtractor that
// turns a rendered reservation grid into an AvailabilityMap, and the
// ChangeWaiter that synchronizes with the site's asynchronous re-renders.
package crawler
