// Package main provides the entry point for beamcal.
//
// beamcal is the calibration tool for dual-beam (electron and ion)
// microscopes: state snapshot and restore, focus search, needle
// alignment, charge neutralisation, and stage homing and linking.
package main
