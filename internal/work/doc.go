// Package work runs the signal pipeline over the instrument universe.
//
// A Runner lists the universe, fans the instruments out to a bounded pool and
// aggregates one Result per instrument into a Summary. A failure on one
// instrument is recorded and the run continues with the rest.
package work
