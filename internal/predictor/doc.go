// Package predictor answers AMR prediction requests.
//
// A Memo owns a prediction store and a Resolver. The first request for a
// selection resolves a verdict and stores it; every later request for an
// equivalent selection (same bacteria, antibiotic and marker sets, in any
// order) gets the stored verdict back. A stored verdict is never replaced.
//
// Resolvers decide what a first request yields: CoinFlip draws YES or NO
// with equal odds, Remote asks a model server, Fallback chains the two.
package predictor
