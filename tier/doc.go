// Package tier executes a homogeneous set of units (worker or synthesis
// agents) under one of three concurrency modes and collects their results
// in input order, independent of completion order.
package tier
