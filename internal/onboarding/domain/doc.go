// Package domain holds the onboarding session model and the pure helpers the
// engine builds on: stage transitions, input stripping, and nickname
// composition. Nothing in this package performs I/O.
package domain
