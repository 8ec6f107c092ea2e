// Package entropy is the statistical core of the feed: it aligns per-market
// probability series onto a shared grid, estimates rolling volatility,
// detects shocks and measures cross-market entanglement.
//
// Every function is pure. Missing data is carried as an undefined Value and
// never as 0 or NaN, so "too weak to keep" and "nothing to compare" stay
// distinguishable all the way to the renderer.
package entropy
